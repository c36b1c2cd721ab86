package favorites_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddareungi/ddareungi/internal/bikeseoul"
	"github.com/ddareungi/ddareungi/internal/entity"
	"github.com/ddareungi/ddareungi/internal/favorites"
)

type mockRegistry struct {
	registered   map[string]entity.State
	updates      int
	failRegister bool
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{registered: make(map[string]entity.State)}
}

func (m *mockRegistry) Register(_ entity.Kind, uniqueKey string, initial entity.State) error {
	if m.failRegister {
		return assert.AnError
	}
	m.registered[uniqueKey] = initial
	return nil
}

func (m *mockRegistry) Unregister(uniqueKey string) error {
	delete(m.registered, uniqueKey)
	return nil
}

func (m *mockRegistry) Update(uniqueKey string, state entity.State) error {
	m.updates++
	m.registered[uniqueKey] = state
	return nil
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name       string
		fetched    []string
		registered []string
		wantAdd    []string
		wantRemove []string
	}{
		{
			name:       "add and remove",
			fetched:    []string{"ST-2", "ST-3"},
			registered: []string{"ST-1", "ST-2"},
			wantAdd:    []string{"ST-3"},
			wantRemove: []string{"ST-1"},
		},
		{
			name:       "identical sets",
			fetched:    []string{"ST-1", "ST-2"},
			registered: []string{"ST-2", "ST-1"},
		},
		{
			name:    "everything new",
			fetched: []string{"ST-9"},
			wantAdd: []string{"ST-9"},
		},
		{
			name:       "everything gone",
			registered: []string{"ST-9"},
			wantRemove: []string{"ST-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := favorites.Reconcile(tt.fetched, tt.registered)
			assert.Equal(t, tt.wantAdd, delta.ToAdd)
			assert.Equal(t, tt.wantRemove, delta.ToRemove)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	fetched := []string{"ST-2", "ST-3"}
	registered := []string{"ST-1", "ST-2"}

	delta := favorites.Reconcile(fetched, registered)

	// Apply the delta to the registered set by hand.
	after := map[string]struct{}{}
	for _, code := range registered {
		after[code] = struct{}{}
	}
	for _, code := range delta.ToRemove {
		delete(after, code)
	}
	for _, code := range delta.ToAdd {
		after[code] = struct{}{}
	}
	var applied []string
	for code := range after {
		applied = append(applied, code)
	}

	again := favorites.Reconcile(fetched, applied)
	assert.True(t, again.Empty())
}

func TestApplier_Apply(t *testing.T) {
	registry := newMockRegistry()
	applier := favorites.NewApplier(favorites.ApplierConfig{
		InstanceID: "inst-1",
		Registry:   registry,
		Logger:     zerolog.Nop(),
	})

	bikes := 4
	applier.Apply([]bikeseoul.Favorite{
		{Code: "ST-1", Name: "시청앞", BikesGeneral: &bikes},
		{Code: "ST-2", Name: "광화문"},
	})

	require.Len(t, registry.registered, 2)
	assert.Equal(t, []string{"ST-1", "ST-2"}, applier.Registered())
	state := registry.registered["inst-1:favorite:ST-1"]
	assert.Equal(t, 4, state["bikes_general"])

	// Next fetch drops ST-1 and adds ST-3.
	applier.Apply([]bikeseoul.Favorite{
		{Code: "ST-2", Name: "광화문"},
		{Code: "ST-3", Name: "서울역"},
	})

	assert.Equal(t, []string{"ST-2", "ST-3"}, applier.Registered())
	_, gone := registry.registered["inst-1:favorite:ST-1"]
	assert.False(t, gone)

	// Survivors get a state update on every pass.
	assert.GreaterOrEqual(t, registry.updates, 1)
}

func TestApplier_RegisterFailureNotTracked(t *testing.T) {
	registry := newMockRegistry()
	registry.failRegister = true
	applier := favorites.NewApplier(favorites.ApplierConfig{
		InstanceID: "inst-1",
		Registry:   registry,
		Logger:     zerolog.Nop(),
	})

	applier.Apply([]bikeseoul.Favorite{{Code: "ST-1"}})
	assert.Empty(t, applier.Registered())

	// Once the registry recovers, the same station is retried next pass.
	registry.failRegister = false
	applier.Apply([]bikeseoul.Favorite{{Code: "ST-1"}})
	assert.Equal(t, []string{"ST-1"}, applier.Registered())
}
