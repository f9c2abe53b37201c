package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/glimte/unitbus/contracts"
)

// ErrInvalidMessage is matched by every ValidationErrors
var ErrInvalidMessage = errors.New("invalid message")

var printer = message.NewPrinter(language.English)

// ValidationError is a single violation
type ValidationError struct {
	Field   string
	Message string
}

func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationErrors lists all violations found in a message, ordered by field
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return strings.Join(parts, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidMessage
}

type compiled struct {
	source *Schema
	schema *jsonschema.Schema
}

// Validator checks messages against the schema registered for their name.
// Messages without a schema are valid.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]compiled
}

func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]compiled)}
}

// Register compiles the schema of a message name, replacing any previous one.
// Schemas without $schema are read as draft 7.
func (v *Validator) Register(name string, s *Schema) error {
	if name == "" {
		return fmt.Errorf("message name cannot be empty")
	}
	if s == nil {
		return fmt.Errorf("schema of %s cannot be nil", name)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode schema for %s: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode schema for %s: %w", name, err)
	}

	url := schemaURL(name)
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource(url, doc); err != nil {
		return fmt.Errorf("invalid schema for %s: %w", name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", name, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[name] = compiled{source: s, schema: sch}
	return nil
}

// Schema returns the schema registered for a message name
func (v *Validator) Schema(name string) (*Schema, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.schemas[name]
	return c.source, ok
}

// Validate checks the JSON form of msg; violations are returned as ValidationErrors
func (v *Validator) Validate(msg contracts.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	v.mu.RLock()
	c, ok := v.schemas[msg.GetName()]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.GetName(), err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode message %s: %w", msg.GetName(), err)
	}

	err = c.schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("failed to validate message %s: %w", msg.GetName(), err)
	}

	var errs ValidationErrors
	collect(ve, &errs)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

// collect flattens the leaf causes of ve
func collect(ve *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collect(cause, errs)
		}
		return
	}

	path := fieldPath(ve.InstanceLocation)
	if required, ok := ve.ErrorKind.(*kind.Required); ok {
		for _, name := range required.Missing {
			*errs = append(*errs, ValidationError{Field: join(path, name), Message: "is required"})
		}
		return
	}
	*errs = append(*errs, ValidationError{Field: path, Message: ve.ErrorKind.LocalizedString(printer)})
}

// fieldPath renders an instance location as features_selection[0] or features.dmp
func fieldPath(location []string) string {
	var path string
	for _, segment := range location {
		if _, err := strconv.Atoi(segment); err == nil {
			path += "[" + segment + "]"
			continue
		}
		path = join(path, segment)
	}
	return path
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func schemaURL(name string) string {
	return "urn:unitbus:schema:" + strings.ReplaceAll(name, "/", ":")
}
