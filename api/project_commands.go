package api

import (
	"encoding/json"

	"github.com/glimte/unitbus/contracts"
)

// Project message names
const (
	ListProjectsCommandName  = "command/project/list"
	ListProjectsReplyName    = "command/project/list/reply"
	CreateProjectCommandName = "command/project/create"
	CreateProjectReplyName   = "command/project/create/reply"
	UpdateProjectCommandName = "command/project/update"
	UpdateProjectReplyName   = "command/project/update/reply"
	DeleteProjectCommandName = "command/project/delete"
	DeleteProjectReplyName   = "command/project/delete/reply"

	// ProjectCommandsFilter matches all project commands and replies
	ProjectCommandsFilter = "command/project/*"
)

// ListProjectsCommand fetches all projects. Requires a ListProjectsReply.
type ListProjectsCommand struct {
	contracts.BaseCommand
}

// ListProjectsReply answers ListProjectsCommand
type ListProjectsReply struct {
	contracts.BaseCommandReply
	Projects []Project `json:"projects"`
}

// CreateProjectCommand creates a project. Requires a CreateProjectReply.
type CreateProjectCommand struct {
	contracts.BaseCommand
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateProjectReply answers CreateProjectCommand
type CreateProjectReply struct {
	contracts.BaseCommandReply
	ProjectID ProjectID `json:"project_id"`
}

// UpdateProjectCommand updates the parts of a project selected by Scope.
// Requires an UpdateProjectReply.
type UpdateProjectCommand struct {
	contracts.BaseCommand
	ProjectID ProjectID          `json:"project_id"`
	Scope     UpdateProjectScope `json:"scope"`

	// UpdateScopeHead
	Title       string `json:"title"`
	Description string `json:"description"`

	// UpdateScopeFeaturesData
	Features map[string]json.RawMessage `json:"features,omitempty"`

	// UpdateScopeFeaturesSelection
	FeaturesSelection []string `json:"features_selection,omitempty"`
}

// UpdateProjectReply answers UpdateProjectCommand
type UpdateProjectReply struct {
	contracts.BaseCommandReply
	ProjectID ProjectID `json:"project_id"`
}

// DeleteProjectCommand deletes a project. Requires a DeleteProjectReply.
type DeleteProjectCommand struct {
	contracts.BaseCommand
	ProjectID ProjectID `json:"project_id"`
}

// DeleteProjectReply answers DeleteProjectCommand
type DeleteProjectReply struct {
	contracts.BaseCommandReply
	ProjectID ProjectID `json:"project_id"`
}
