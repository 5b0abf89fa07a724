package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBlobRoundTrip(t *testing.T) {
	assert := assert.New(t)

	original := map[string]*toolboxUserNotes{
		"alice": {Notes: []toolboxNote{{Note: "spam", Time: 1700000000, Mod: 0, Link: "l,abc", Warning: 1}}},
		"bob":   {Notes: []toolboxNote{}},
	}

	blob, err := EncodeBlob(original)
	require.NoError(t, err)

	var decoded map[string]*toolboxUserNotes
	require.NoError(t, DecodeBlob(blob, &decoded))
	assert.Equal(original, decoded)
}

func notesPage(t *testing.T, users, warnings []string, notes map[string]*toolboxUserNotes) string {
	t.Helper()
	blob, err := EncodeBlob(notes)
	require.NoError(t, err)
	page, err := json.Marshal(toolboxPage{
		Ver:       toolboxSchemaVersion,
		Constants: toolboxConstants{Users: users, Warnings: warnings},
		Blob:      blob,
	})
	require.NoError(t, err)
	return string(page)
}

func TestNoteTransform(t *testing.T) {
	assert := assert.New(t)

	sub := NewMockSubreddit("thirdrealm")
	ledger := NewLedgerBuilder(sub, testLogger()).Notes()

	existing := map[string]*toolboxUserNotes{
		"bob": {Notes: []toolboxNote{{Note: "old", Time: 100, Mod: 0, Link: "l,xyz", Warning: 0}}},
	}
	content := notesPage(t, []string{"TGB"}, []string{"ban"}, existing)

	ledger.Add(UserNote{Author: "alice", Level: "spamwarn", Link: "l,abc,def", Moderator: "other_mod", Text: "note one", Time: 200})
	ledger.Add(UserNote{Author: "alice", Level: "ban", Link: "l,abc", Moderator: "TGB", Text: "note two", Time: 300})

	updated, err := ledger.transform(content)
	require.NoError(t, err)

	var page toolboxPage
	require.NoError(t, json.Unmarshal([]byte(updated), &page))
	assert.Equal(toolboxSchemaVersion, page.Ver)

	// known names keep their indices; new ones are appended
	assert.Equal([]string{"TGB", "other_mod"}, page.Constants.Users)
	assert.Equal([]string{"ban", "spamwarn"}, page.Constants.Warnings)

	var notes map[string]*toolboxUserNotes
	require.NoError(t, DecodeBlob(page.Blob, &notes))

	// bob's existing note is untouched
	require.Len(t, notes["bob"].Notes, 1)
	assert.Equal("old", notes["bob"].Notes[0].Note)

	// alice's notes are newest first
	require.Len(t, notes["alice"].Notes, 2)
	assert.Equal("note two", notes["alice"].Notes[0].Note)
	assert.Equal(0, notes["alice"].Notes[0].Mod)
	assert.Equal(0, notes["alice"].Notes[0].Warning)
	assert.Equal("note one", notes["alice"].Notes[1].Note)
	assert.Equal(1, notes["alice"].Notes[1].Mod)
	assert.Equal(1, notes["alice"].Notes[1].Warning)
}

func TestNoteTransformVersionMismatch(t *testing.T) {
	assert := assert.New(t)

	sub := NewMockSubreddit("thirdrealm")
	ledger := NewLedgerBuilder(sub, testLogger()).Notes()
	ledger.Add(UserNote{Author: "alice", Level: "ban", Link: "l,abc", Moderator: "TGB", Text: "note", Time: 100})

	content := `{"ver":5,"constants":{"users":[],"warnings":[]},"blob":""}`
	_, err := ledger.transform(content)
	assert.Error(err)
	assert.Contains(err.Error(), "version")
}

func TestNoteLedgerRetainsBufferOnVersionMismatch(t *testing.T) {
	assert := assert.New(t)

	sub := NewMockSubreddit("thirdrealm")
	sub.WikiContent[userNotesPage] = `{"ver":5,"constants":{"users":[],"warnings":[]},"blob":""}`
	sub.WikiRevision[userNotesPage] = "r1"

	ledger := NewLedgerBuilder(sub, testLogger()).Notes()
	ledger.Add(UserNote{Author: "alice", Level: "ban", Link: "l,abc", Moderator: "TGB", Text: "note", Time: 100})

	ledger.After(context.Background())

	assert.Len(ledger.Pending(), 1)
	assert.Empty(sub.WikiSaves)
}
