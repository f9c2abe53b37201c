package api

import "github.com/glimte/unitbus/contracts"

const (
	ProjectsChangedEventName = "event/project/changed"

	// ProjectsRoom is joined by every unit showing projects
	ProjectsRoom = "projects"
)

// ProjectChange tells what happened to a project
type ProjectChange string

const (
	ProjectCreated ProjectChange = "created"
	ProjectUpdated ProjectChange = "updated"
	ProjectDeleted ProjectChange = "deleted"
)

// ProjectsChangedEvent is sent to ProjectsRoom after a project was modified
type ProjectsChangedEvent struct {
	contracts.BaseEvent
	ProjectID ProjectID     `json:"project_id"`
	Change    ProjectChange `json:"change"`
}
