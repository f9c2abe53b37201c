package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/internal/clock"
)

// FirstProjectID is assigned when the store is empty
const FirstProjectID api.ProjectID = 1000

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInvalidProject  = errors.New("invalid project")
)

// ProjectStore keeps the projects answered by the gate
type ProjectStore interface {
	List() []api.Project
	Get(id api.ProjectID) (api.Project, error)
	Create(title, description string) (api.Project, error)
	Update(cmd *api.UpdateProjectCommand) (api.Project, error)
	Delete(id api.ProjectID) (api.Project, error)
}

// MemoryStore is a ProjectStore held in memory
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[api.ProjectID]api.Project
	clock    clock.Clock
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithStoreClock sets the clock used for creation times
func WithStoreClock(c clock.Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.clock = c
	}
}

// NewMemoryStore creates an empty store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		projects: make(map[api.ProjectID]api.Project),
		clock:    clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all projects ordered by id
func (s *MemoryStore) List() []api.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.projects))
	projects := make([]api.Project, 0, len(ids))
	for _, id := range ids {
		projects = append(projects, clone(s.projects[id]))
	}
	return projects
}

func (s *MemoryStore) Get(id api.ProjectID) (api.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[id]
	if !ok {
		return api.Project{}, notFound(id)
	}
	return clone(project), nil
}

// Create adds a project with the next free id
func (s *MemoryStore) Create(title, description string) (api.Project, error) {
	if strings.TrimSpace(title) == "" {
		return api.Project{}, fmt.Errorf("%w: a project needs a title", ErrInvalidProject)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	project := api.Project{
		ProjectID:    s.nextID(),
		CreationTime: s.clock.Now().Unix(),
		Title:        title,
		Description:  description,
		Status:       api.ProjectStatusActive,
		Features:     map[string]json.RawMessage{},
	}
	s.projects[project.ProjectID] = project
	return clone(project), nil
}

// Update applies the parts of cmd selected by its scope. Feature data is only written for
// selected features; a selection drops features not listed and adds new ones empty.
func (s *MemoryStore) Update(cmd *api.UpdateProjectCommand) (api.Project, error) {
	if cmd.Scope == api.UpdateScopeNone {
		return api.Project{}, fmt.Errorf("%w: empty update scope", ErrInvalidProject)
	}
	if cmd.Scope.Has(api.UpdateScopeHead) && strings.TrimSpace(cmd.Title) == "" {
		return api.Project{}, fmt.Errorf("%w: a project needs a title", ErrInvalidProject)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[cmd.ProjectID]
	if !ok {
		return api.Project{}, notFound(cmd.ProjectID)
	}
	project := clone(current)

	if cmd.Scope.Has(api.UpdateScopeHead) {
		project.Title = cmd.Title
		project.Description = cmd.Description
	}

	if cmd.Scope.Has(api.UpdateScopeFeaturesSelection) {
		selected := make(map[string]json.RawMessage, len(cmd.FeaturesSelection))
		for _, name := range cmd.FeaturesSelection {
			if data, ok := project.Features[name]; ok {
				selected[name] = data
			} else {
				selected[name] = json.RawMessage("{}")
			}
		}
		project.Features = selected
	}

	if cmd.Scope.Has(api.UpdateScopeFeaturesData) {
		for name, data := range cmd.Features {
			if _, ok := project.Features[name]; !ok {
				return api.Project{}, fmt.Errorf("%w: feature %q is not selected", ErrInvalidProject, name)
			}
			project.Features[name] = slices.Clone(data)
		}
	}

	s.projects[project.ProjectID] = project
	return clone(project), nil
}

// Delete removes a project and returns it marked as deleted
func (s *MemoryStore) Delete(id api.ProjectID) (api.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[id]
	if !ok {
		return api.Project{}, notFound(id)
	}
	delete(s.projects, id)

	project.Status = api.ProjectStatusDeleted
	return clone(project), nil
}

// Len returns the number of stored projects
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

func (s *MemoryStore) nextID() api.ProjectID {
	if len(s.projects) == 0 {
		return FirstProjectID
	}
	return slices.Max(slices.Collect(maps.Keys(s.projects))) + 1
}

func notFound(id api.ProjectID) error {
	return fmt.Errorf("%w: a project with ID %d was not found", ErrProjectNotFound, id)
}

func clone(p api.Project) api.Project {
	if p.Features != nil {
		features := make(map[string]json.RawMessage, len(p.Features))
		for name, data := range p.Features {
			features[name] = slices.Clone(data)
		}
		p.Features = features
	}
	return p
}
