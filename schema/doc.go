// Package schema describes message types with JSON Schema (draft 7).
//
// A Generator derives the schema of every registered message from its Go type, which
// is how components publish their contracts:
//
//	contracts, err := schema.Catalog(registry)
//
// A Validator checks message payloads against declared schemas before they are
// processed:
//
//	v := schema.NewValidator()
//	err := v.Register(api.CreateProjectCommandName, &schema.Schema{
//	    Type:     schema.TypeObject,
//	    Required: []string{"title"},
//	    Properties: map[string]*schema.Schema{
//	        "title": {Type: schema.TypeString, MinLength: schema.Int(1)},
//	    },
//	})
//
//	if err := v.Validate(cmd); err != nil {
//	    // errors.Is(err, schema.ErrInvalidMessage)
//	}
//
// Schemas are compiled with github.com/santhosh-tekuri/jsonschema/v6 and checked against
// the JSON form of a message, so property names are the JSON field names.
package schema
