package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leviroth/bernard/engine"
	"github.com/leviroth/bernard/store"
)

type mockOpener struct {
	subs map[string]*engine.MockSubreddit
}

func (o *mockOpener) Subreddit(name string) engine.SubredditClient {
	if o.subs == nil {
		o.subs = make(map[string]*engine.MockSubreddit)
	}
	if _, ok := o.subs[name]; !ok {
		o.subs[name] = engine.NewMockSubreddit(name)
	}
	return o.subs[name]
}

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	st := store.NewStore(db)
	require.NoError(t, st.AutoMigrate())
	return Dependencies{
		Client: &mockOpener{},
		Store:  st,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

const goodConfig = `
trigger:
    commands: [foo, "rule 1"]
    types: [post]
info:
    name: Remove
    details: rule 1
actions:
    - remove
    - notify:
        text: A notification
---
trigger:
    commands: [usernote]
    types: [post, comment]
info:
    name: Note
dedupe: target
actions:
    - usernote:
        text: noted
        level: spamwatch
    - nuke
`

func TestLoadSubreddit(t *testing.T) {
	assert := assert.New(t)

	deps := testDeps(t)
	browser, err := LoadSubreddit(context.Background(), "thirdrealm", strings.NewReader(goodConfig), deps)
	require.NoError(t, err)

	assert.Equal("thirdrealm", browser.SubredditName())
	rules := browser.Rules()
	require.Len(t, rules, 2)

	assert.Equal("Remove", rules[0].Name)
	assert.Equal("rule 1", rules[0].Details)
	assert.True(rules[0].Remove)
	assert.True(rules[0].Lock)
	assert.Len(rules[0].Actions, 1)

	assert.Equal("Note", rules[1].Name)
	assert.False(rules[1].Remove)
	assert.Equal(engine.DedupeByTarget, rules[1].Scope)
	assert.Len(rules[1].Actions, 2)

	// usernote and nuke instantiate one shared ledger each
	assert.Len(browser.Ledgers(), 2)
}

func TestLoadSubredditRemoveWithoutLock(t *testing.T) {
	assert := assert.New(t)

	doc := `
trigger:
    commands: [foo]
    types: [post]
info:
    name: Remove unlocked
actions:
    - remove:
        lock: false
`
	browser, err := LoadSubreddit(context.Background(), "thirdrealm", strings.NewReader(doc), testDeps(t))
	require.NoError(t, err)
	assert.True(browser.Rules()[0].Remove)
	assert.False(browser.Rules()[0].Lock)
}

func TestLoadSubredditNoLockOnComments(t *testing.T) {
	assert := assert.New(t)

	doc := `
trigger:
    commands: [foo]
    types: [comment]
info:
    name: Remove comment
actions:
    - remove
`
	browser, err := LoadSubreddit(context.Background(), "thirdrealm", strings.NewReader(doc), testDeps(t))
	require.NoError(t, err)
	// locking only applies to posts
	assert.False(browser.Rules()[0].Lock)
}

func loadErr(t *testing.T, doc string) error {
	t.Helper()
	_, err := LoadSubreddit(context.Background(), "thirdrealm", strings.NewReader(doc), testDeps(t))
	require.Error(t, err)
	return err
}

func TestLoadSubredditRejectsUnknownAction(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [post]
info:
    name: Bad
actions:
    - explode
`)
	assert.Contains(t, err.Error(), `unknown action: "explode"`)
}

func TestLoadSubredditRejectsMistypedParameter(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [post]
info:
    name: Bad
actions:
    - ban:
        duration: soon
`)
	assert.Contains(t, err.Error(), "invalid parameters")
}

func TestLoadSubredditRejectsUnknownParameter(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [post]
info:
    name: Bad
actions:
    - notify:
        text: hi
        color: red
`)
	assert.Contains(t, err.Error(), "invalid parameters")
}

func TestLoadSubredditRejectsUnsupportedTargetType(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [post, comment]
info:
    name: Bad
actions:
    - lock
`)
	assert.Contains(t, err.Error(), "does not support target type comment")
}

func TestLoadSubredditRejectsMissingName(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [post]
actions:
    - remove
`)
	assert.Contains(t, err.Error(), "info.name")
}

func TestLoadSubredditRejectsBadDedupe(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [post]
info:
    name: Bad
dedupe: everyone
actions:
    - remove
`)
	assert.Contains(t, err.Error(), "unknown dedupe scope")
}

func TestLoadSubredditRejectsBadTargetType(t *testing.T) {
	err := loadErr(t, `
trigger:
    commands: [foo]
    types: [message]
info:
    name: Bad
actions:
    - remove
`)
	assert.Contains(t, err.Error(), "unknown target type")
}

func TestLoadDirectory(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	doc := `
trigger:
    commands: [foo]
    types: [post]
info:
    name: Remove
actions:
    - remove
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thirdrealm.yaml"), []byte(doc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a config"), 0644))

	browsers, err := LoadDirectory(context.Background(), dir, testDeps(t))
	require.NoError(t, err)
	require.Len(t, browsers, 1)
	assert.Equal("thirdrealm", browsers[0].SubredditName())
}
