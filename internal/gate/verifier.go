package gate

import (
	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/schema"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 4000
	maxFeatures          = 32
)

// NewCommandValidator returns the validator checking project commands before they reach
// the store. Rules depending on the stored project, such as the title required by a
// head update, are left to the store.
func NewCommandValidator() *schema.Validator {
	title := func(min int) *schema.Schema {
		return &schema.Schema{Type: schema.TypeString, MinLength: schema.Int(min), MaxLength: schema.Int(maxTitleLength)}
	}
	description := &schema.Schema{Type: schema.TypeString, MaxLength: schema.Int(maxDescriptionLength)}
	projectID := &schema.Schema{Type: schema.TypeInteger, Minimum: schema.Float(1)}
	scope := api.UpdateScopeHead | api.UpdateScopeFeaturesData | api.UpdateScopeFeaturesSelection

	v := schema.NewValidator()
	must(v.Register(api.CreateProjectCommandName, &schema.Schema{
		Type:     schema.TypeObject,
		Required: []string{"title"},
		Properties: map[string]*schema.Schema{
			"title":       title(1),
			"description": description,
		},
	}))
	must(v.Register(api.UpdateProjectCommandName, &schema.Schema{
		Type:     schema.TypeObject,
		Required: []string{"project_id", "scope"},
		Properties: map[string]*schema.Schema{
			"project_id":  projectID,
			"scope":       {Type: schema.TypeInteger, Minimum: schema.Float(0), Maximum: schema.Float(float64(scope))},
			"title":       title(0),
			"description": description,
			"features": {
				Type:                 schema.TypeObject,
				AdditionalProperties: &schema.Schema{},
			},
			"features_selection": {
				Type:     schema.TypeArray,
				MaxItems: schema.Int(maxFeatures),
				Items:    &schema.Schema{Type: schema.TypeString, MinLength: schema.Int(1)},
			},
		},
	}))
	must(v.Register(api.DeleteProjectCommandName, &schema.Schema{
		Type:       schema.TypeObject,
		Required:   []string{"project_id"},
		Properties: map[string]*schema.Schema{"project_id": projectID},
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
