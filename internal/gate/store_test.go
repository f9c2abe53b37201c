package gate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() (*MemoryStore, *clock.Fake) {
	c := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewMemoryStore(WithStoreClock(c)), c
}

func TestMemoryStore(t *testing.T) {
	t.Run("ids start at 1000 and follow the highest id", func(t *testing.T) {
		store, _ := newStore()

		first, err := store.Create("A", "")
		require.NoError(t, err)
		second, err := store.Create("B", "")
		require.NoError(t, err)
		assert.Equal(t, FirstProjectID, first.ProjectID)
		assert.Equal(t, FirstProjectID+1, second.ProjectID)

		_, err = store.Delete(first.ProjectID)
		require.NoError(t, err)
		third, err := store.Create("C", "")
		require.NoError(t, err)
		assert.Equal(t, FirstProjectID+2, third.ProjectID)
	})

	t.Run("create stamps creation time and status", func(t *testing.T) {
		store, c := newStore()

		project, err := store.Create("Title", "Description")
		require.NoError(t, err)
		assert.Equal(t, c.Now().Unix(), project.CreationTime)
		assert.Equal(t, api.ProjectStatusActive, project.Status)
		assert.Equal(t, "Description", project.Description)
	})

	t.Run("create requires a title", func(t *testing.T) {
		store, _ := newStore()

		_, err := store.Create("  ", "nothing")
		assert.ErrorIs(t, err, ErrInvalidProject)
		assert.Zero(t, store.Len())
	})

	t.Run("list is ordered by id", func(t *testing.T) {
		store, _ := newStore()
		for _, title := range []string{"A", "B", "C"} {
			_, err := store.Create(title, "")
			require.NoError(t, err)
		}

		projects := store.List()
		require.Len(t, projects, 3)
		assert.Equal(t, "A", projects[0].Title)
		assert.Equal(t, "C", projects[2].Title)
	})

	t.Run("delete marks and removes the project", func(t *testing.T) {
		store, _ := newStore()
		project, err := store.Create("A", "")
		require.NoError(t, err)

		deleted, err := store.Delete(project.ProjectID)
		require.NoError(t, err)
		assert.Equal(t, api.ProjectStatusDeleted, deleted.Status)

		_, err = store.Get(project.ProjectID)
		assert.ErrorIs(t, err, ErrProjectNotFound)

		_, err = store.Delete(project.ProjectID)
		assert.ErrorIs(t, err, ErrProjectNotFound)
		assert.Contains(t, err.Error(), "a project with ID 1000 was not found")
	})

	t.Run("returned projects are copies", func(t *testing.T) {
		store, _ := newStore()
		project, err := store.Create("A", "")
		require.NoError(t, err)

		project.Features["x"] = json.RawMessage(`1`)
		project.Title = "changed"

		stored, err := store.Get(project.ProjectID)
		require.NoError(t, err)
		assert.Equal(t, "A", stored.Title)
		assert.Empty(t, stored.Features)
	})
}

func TestMemoryStoreUpdate(t *testing.T) {
	setup := func(t *testing.T) (*MemoryStore, api.ProjectID) {
		store, _ := newStore()
		project, err := store.Create("Title", "Description")
		require.NoError(t, err)
		return store, project.ProjectID
	}

	t.Run("head scope replaces title and description", func(t *testing.T) {
		store, id := setup(t)

		project, err := store.Update(&api.UpdateProjectCommand{
			ProjectID:   id,
			Scope:       api.UpdateScopeHead,
			Title:       "New",
			Description: "Changed",
		})
		require.NoError(t, err)
		assert.Equal(t, "New", project.Title)
		assert.Equal(t, "Changed", project.Description)
	})

	t.Run("head scope requires a title", func(t *testing.T) {
		store, id := setup(t)

		_, err := store.Update(&api.UpdateProjectCommand{ProjectID: id, Scope: api.UpdateScopeHead})
		assert.ErrorIs(t, err, ErrInvalidProject)
	})

	t.Run("other scopes leave the head alone", func(t *testing.T) {
		store, id := setup(t)

		project, err := store.Update(&api.UpdateProjectCommand{
			ProjectID:         id,
			Scope:             api.UpdateScopeFeaturesSelection,
			Title:             "ignored",
			FeaturesSelection: []string{"dmp"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Title", project.Title)
	})

	t.Run("selection keeps data of selected features", func(t *testing.T) {
		store, id := setup(t)

		_, err := store.Update(&api.UpdateProjectCommand{
			ProjectID:         id,
			Scope:             api.UpdateScopeFeaturesSelection | api.UpdateScopeFeaturesData,
			FeaturesSelection: []string{"metadata", "dmp"},
			Features:          map[string]json.RawMessage{"metadata": json.RawMessage(`{"a":1}`)},
		})
		require.NoError(t, err)

		project, err := store.Update(&api.UpdateProjectCommand{
			ProjectID:         id,
			Scope:             api.UpdateScopeFeaturesSelection,
			FeaturesSelection: []string{"metadata", "tags"},
		})
		require.NoError(t, err)
		assert.Len(t, project.Features, 2)
		assert.JSONEq(t, `{"a":1}`, string(project.Features["metadata"]))
		assert.JSONEq(t, `{}`, string(project.Features["tags"]))
	})

	t.Run("data for unselected features is rejected", func(t *testing.T) {
		store, id := setup(t)

		_, err := store.Update(&api.UpdateProjectCommand{
			ProjectID: id,
			Scope:     api.UpdateScopeFeaturesData,
			Features:  map[string]json.RawMessage{"dmp": json.RawMessage(`{}`)},
		})
		assert.ErrorIs(t, err, ErrInvalidProject)
	})

	t.Run("empty scope is rejected", func(t *testing.T) {
		store, id := setup(t)

		_, err := store.Update(&api.UpdateProjectCommand{ProjectID: id})
		assert.ErrorIs(t, err, ErrInvalidProject)
	})

	t.Run("unknown project", func(t *testing.T) {
		store, _ := setup(t)

		_, err := store.Update(&api.UpdateProjectCommand{ProjectID: 1, Scope: api.UpdateScopeHead, Title: "x"})
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})
}

func TestFillStubData(t *testing.T) {
	store, _ := newStore()
	require.NoError(t, FillStubData(store))

	projects := store.List()
	require.Len(t, projects, len(stubProjects))
	assert.Equal(t, FirstProjectID, projects[0].ProjectID)
	assert.Contains(t, projects[0].Features, "dmp")
	assert.Empty(t, projects[len(projects)-1].Features)
}
