package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorilallo/outline/crdt"
)

func authorDelta(t *testing.T, userID, text string) []byte {
	t.Helper()
	doc := crdt.NewDocument(crdt.NewOriginID())
	change := doc.NewChange(userID)
	change.AppendBlock(crdt.BlockParagraph, text)
	blob, err := change.Encode()
	require.NoError(t, err)
	return blob
}

func TestCollaboratorsUnion(t *testing.T) {
	state := crdt.NewDocument(crdt.NewOriginID())
	require.NoError(t, state.ApplyUpdate(authorDelta(t, "user2", "a")))
	require.NoError(t, state.ApplyUpdate(authorDelta(t, "user3", "b")))

	ids := Collaborators(state, []string{"user1", "user2"})
	assert.Equal(t, []string{"user1", "user2", "user3"}, ids)
}

func TestCollaboratorsNeverShrinks(t *testing.T) {
	state := crdt.NewDocument(crdt.NewOriginID())

	ids := Collaborators(state, []string{"departed"})
	assert.Equal(t, []string{"departed"}, ids)
}

func TestCollaboratorsSkipsUnattributedOrigins(t *testing.T) {
	state := crdt.NewDocument(crdt.NewOriginID())
	// A system seed carries no user attribution.
	require.NoError(t, state.ApplyUpdate(authorDelta(t, "", "seeded")))
	require.NoError(t, state.ApplyUpdate(authorDelta(t, "alice", "edit")))

	ids := Collaborators(state, nil)
	assert.Equal(t, []string{"alice"}, ids)
}

func TestCollaboratorsOrderIndependent(t *testing.T) {
	deltaA := authorDelta(t, "alice", "a")
	deltaB := authorDelta(t, "bob", "b")

	forward := crdt.NewDocument(crdt.NewOriginID())
	require.NoError(t, forward.ApplyUpdate(deltaA))
	require.NoError(t, forward.ApplyUpdate(deltaB))

	reversed := crdt.NewDocument(crdt.NewOriginID())
	require.NoError(t, reversed.ApplyUpdate(deltaB))
	require.NoError(t, reversed.ApplyUpdate(deltaA))

	assert.Equal(t,
		Collaborators(forward, nil),
		Collaborators(reversed, nil))
}
