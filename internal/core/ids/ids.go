// Package ids provides the typed, per-entity-kind identifiers used across
// canonical state. Profile, workspace, and tab identifiers are monotonically
// increasing counters scoped to their entity kind — never reused, even
// after deletion — so that a generator is just a private uint64 cursor,
// not a ULID source.
package ids

import "fmt"

// ProfileID identifies a profile.
type ProfileID uint64

// WorkspaceID identifies a workspace.
type WorkspaceID uint64

// TabID identifies a tab.
type TabID uint64

func (id ProfileID) String() string   { return fmt.Sprintf("profile:%d", uint64(id)) }
func (id WorkspaceID) String() string { return fmt.Sprintf("workspace:%d", uint64(id)) }
func (id TabID) String() string       { return fmt.Sprintf("tab:%d", uint64(id)) }

// Generator allocates strictly increasing IDs for one entity kind.
//
// Not safe for concurrent use; callers serialize allocation through the
// single mutation thread that owns canonical state.
type Generator struct {
	next uint64
}

// NewGenerator creates a generator whose first Next() returns 1.
func NewGenerator() *Generator {
	return &Generator{next: 1}
}

// Next returns the next id in the sequence and advances the cursor.
func (g *Generator) Next() uint64 {
	id := g.next
	g.next++
	return id
}

// Generators bundles one counter per entity kind, scoped to a single
// canonical state instance.
type Generators struct {
	Profiles   *Generator
	Workspaces *Generator
	Tabs       *Generator
}

// NewGenerators creates a fresh set of generators starting at 1.
func NewGenerators() *Generators {
	return &Generators{
		Profiles:   NewGenerator(),
		Workspaces: NewGenerator(),
		Tabs:       NewGenerator(),
	}
}

func (g *Generators) NextProfile() ProfileID     { return ProfileID(g.Profiles.Next()) }
func (g *Generators) NextWorkspace() WorkspaceID { return WorkspaceID(g.Workspaces.Next()) }
func (g *Generators) NextTab() TabID             { return TabID(g.Tabs.Next()) }

// Seed advances a generator's cursor to start after the given high-water
// mark, used when restoring generators from a persisted snapshot so newly
// issued ids never collide with previously persisted ones.
func (g *Generator) Seed(highWaterMark uint64) {
	if highWaterMark >= g.next {
		g.next = highWaterMark + 1
	}
}
