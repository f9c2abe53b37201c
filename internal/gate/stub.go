package gate

import (
	"errors"

	"github.com/glimte/unitbus/api"
)

type stubProject struct {
	title       string
	description string
	features    []string
}

var stubProjects = []stubProject{
	{
		title:       "Our first project",
		description: "This is our first attempt to create a project",
		features:    []string{"metadata", "dmp"},
	},
	{
		title:       "Top-secret experiments",
		description: "If you read this, someone is already on their way to you!",
		features:    []string{"metadata", "dmp"},
	},
	{
		title:       "Unfinished business",
		description: "This project was started and never looked at again.",
		features:    []string{"metadata"},
	},
	{
		title:       "Sorry, but this project has a way too long title to be displayed",
		description: "The description is also longer than any list would like it to be, which makes it a good test for truncation in every frontend that shows it.",
		features:    []string{"dmp"},
	},
	{
		title:       "A fine project",
		description: "Last but not least, a fine one.",
	},
}

// FillStubData adds a fixed set of sample projects to the store
func FillStubData(store ProjectStore) error {
	var errs []error
	for _, stub := range stubProjects {
		project, err := store.Create(stub.title, stub.description)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(stub.features) == 0 {
			continue
		}

		_, err = store.Update(&api.UpdateProjectCommand{
			ProjectID:         project.ProjectID,
			Scope:             api.UpdateScopeFeaturesSelection,
			FeaturesSelection: stub.features,
		})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
