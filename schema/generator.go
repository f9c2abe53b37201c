package schema

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/serialization"
)

// Draft is the JSON Schema dialect of generated schemas
const Draft = "http://json-schema.org/draft-07/schema#"

// JSON Schema types
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Schema is a JSON Schema document. Only the keywords used by this package are modeled.
type Schema struct {
	Schema      string `json:"$schema,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`

	Enum      []any    `json:"enum,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	MinItems  *int     `json:"minItems,omitempty"`
	MaxItems  *int     `json:"maxItems,omitempty"`
}

// Int returns a pointer to v, for the length and item bounds of a Schema
func Int(v int) *int {
	return &v
}

// Float returns a pointer to v, for the numeric bounds of a Schema
func Float(v float64) *float64 {
	return &v
}

// Message kinds of a Contract
const (
	KindCommand = "command"
	KindReply   = "reply"
	KindEvent   = "event"
)

// Contract describes one registered message type
type Contract struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Type   string  `json:"type"`
	Schema *Schema `json:"schema"`
}

var (
	timeType          = reflect.TypeOf(time.Time{})
	rawMessageType    = reflect.TypeOf(json.RawMessage{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Generator derives schemas from Go types following the rules of encoding/json
type Generator struct {
	// types currently being generated; a type referring to itself ends as a plain object
	visiting map[reflect.Type]bool
}

func NewGenerator() *Generator {
	return &Generator{visiting: make(map[reflect.Type]bool)}
}

// Generate returns the schema of a message. The title is the message name if it is
// stamped, the Go type name otherwise.
func (g *Generator) Generate(msg contracts.Message) (*Schema, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("message %T is not a struct", msg)
	}

	s := g.generate(t)
	s.Schema = Draft
	s.Title = msg.GetName()
	if s.Title == "" {
		s.Title = t.Name()
	}
	return s, nil
}

// Catalog generates the contracts of all types in the registry, sorted by name
func Catalog(registry serialization.TypeRegistry) ([]Contract, error) {
	g := NewGenerator()

	names := registry.ListTypes()
	sort.Strings(names)

	catalog := make([]Contract, 0, len(names))
	for _, name := range names {
		msg, err := registry.CreateInstance(name)
		if err != nil {
			return nil, err
		}

		s, err := g.Generate(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema of %s: %w", name, err)
		}
		s.Title = name

		catalog = append(catalog, Contract{
			Name:   name,
			Kind:   kindOf(msg),
			Type:   reflect.TypeOf(msg).Elem().Name(),
			Schema: s,
		})
	}
	return catalog, nil
}

func kindOf(msg contracts.Message) string {
	switch msg.(type) {
	case contracts.CommandReply:
		return KindReply
	case contracts.Command:
		return KindCommand
	case contracts.Event:
		return KindEvent
	default:
		return ""
	}
}

func (g *Generator) generate(t reflect.Type) *Schema {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return &Schema{Type: TypeString, Format: "date-time"}
	case t == rawMessageType:
		// Any JSON value
		return &Schema{}
	case t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType):
		return &Schema{Type: TypeString}
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: TypeString}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &Schema{Type: TypeInteger}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: TypeInteger, Minimum: Float(0)}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: TypeNumber}
	case reflect.Bool:
		return &Schema{Type: TypeBoolean}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: TypeString, Format: "byte"}
		}
		return &Schema{Type: TypeArray, Items: g.generate(t.Elem())}
	case reflect.Map:
		return &Schema{Type: TypeObject, AdditionalProperties: g.generate(t.Elem())}
	case reflect.Struct:
		if g.visiting[t] {
			return &Schema{Type: TypeObject}
		}
		g.visiting[t] = true
		defer delete(g.visiting, t)

		s := &Schema{Type: TypeObject, Properties: make(map[string]*Schema)}
		g.addFields(s, t)
		return s
	default:
		// Interfaces and anything else can hold any value
		return &Schema{}
	}
}

// addFields adds the JSON fields of struct t to s. Untagged embedded structs are
// flattened like encoding/json does.
func (g *Generator) addFields(s *Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, options, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				g.addFields(s, ft)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}

		fs := g.generate(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			fs.Description = desc
		}
		s.Properties[name] = fs

		if !strings.Contains(options, "omitempty") {
			s.Required = append(s.Required, name)
		}
	}
}
