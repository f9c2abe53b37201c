package api

import "encoding/json"

// ProjectID identifies a project
type ProjectID int64

// ProjectStatus is the lifecycle status of a project
type ProjectStatus int

const (
	ProjectStatusActive  ProjectStatus = 0x00
	ProjectStatusDeleted ProjectStatus = 0xff
)

// Project is the data of a single project
type Project struct {
	ProjectID    ProjectID                  `json:"project_id"`
	CreationTime int64                      `json:"creation_time"`
	Title        string                     `json:"title"`
	Description  string                     `json:"description"`
	Status       ProjectStatus              `json:"status"`
	Features     map[string]json.RawMessage `json:"features,omitempty"`
}

// UpdateProjectScope selects the parts of a project an update touches
type UpdateProjectScope int

const (
	UpdateScopeNone              UpdateProjectScope = 0x0000
	UpdateScopeHead              UpdateProjectScope = 0x0001
	UpdateScopeFeaturesData      UpdateProjectScope = 0x0002
	UpdateScopeFeaturesSelection UpdateProjectScope = 0x0004
)

// Has reports whether all bits of other are set
func (s UpdateProjectScope) Has(other UpdateProjectScope) bool {
	return s&other == other
}
