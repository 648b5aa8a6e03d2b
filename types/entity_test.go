package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   EntityID `json:"id"`
	Text string   `json:"text"`
}

func (n note) EntityID() EntityID { return n.ID }

type memo struct {
	ID   EntityID `json:"id"`
	Text string   `json:"text"`
}

func (m *memo) EntityID() EntityID { return m.ID }

type tagged struct{ ID EntityID }

func (t tagged) EntityID() EntityID { return t.ID }
func (t tagged) EntityKind() string { return "tag" }

func TestIdentityIgnoresContent(t *testing.T) {
	a := note{ID: "1", Text: "One"}
	b := note{ID: "1", Text: "Two"}
	c := note{ID: "2", Text: "One"}

	assert.True(t, SameEntity(a, b))
	assert.False(t, SameEntity(a, c))
	assert.Equal(t, IdentityOf(a), IdentityOf(b))
}

func TestIdentityDistinguishesKinds(t *testing.T) {
	n := note{ID: "1"}
	m := &memo{ID: "1"}

	assert.False(t, SameEntity(n, m))
	assert.Equal(t, "tag", KindOf(tagged{ID: "1"}))
	assert.Equal(t, Identity{Kind: "tag", ID: "1"}, IdentityOf(tagged{ID: "1"}))
}

func TestIdentityAsMapKey(t *testing.T) {
	seen := map[Identity]string{}
	seen[IdentityOf(note{ID: "1", Text: "One"})] = "first"
	seen[IdentityOf(note{ID: "1", Text: "Two"})] = "second"
	seen[IdentityOf(&memo{ID: "1"})] = "memo"

	require.Len(t, seen, 2)
	assert.Equal(t, "second", seen[IdentityOf(note{ID: "1"})])
}

func TestSameEntityNil(t *testing.T) {
	assert.True(t, SameEntity(nil, nil))
	assert.False(t, SameEntity(note{ID: "1"}, nil))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, Version(1), InitialVersion)
	assert.Equal(t, Version(2), InitialVersion.Next())
	assert.Greater(t, InitialVersion.Next().Next().Int64(), InitialVersion.Next().Int64())
}

func TestStoredItemUnpack(t *testing.T) {
	s := &StoredItem[note]{Item: note{ID: "1", Text: "One"}, Version: 3}
	item, v := s.Unpack()
	assert.Equal(t, "One", item.Text)
	assert.Equal(t, Version(3), v)
}

func TestNewEntityIDUnique(t *testing.T) {
	a, b := NewEntityID(), NewEntityID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 36)
}
