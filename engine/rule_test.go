package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leviroth/bernard/reddit"
	"github.com/leviroth/bernard/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	st := store.NewStore(db)
	require.NoError(t, st.AutoMigrate())
	return st
}

func testPost() *reddit.Post {
	return &reddit.Post{
		ID:        "5kgajm",
		Author:    "BJO_test_user",
		Title:     "test post",
		SelfText:  "hello",
		Permalink: "/r/thirdrealm/comments/5kgajm/test_post/",
	}
}

func removeRule(t *testing.T, sub SubredditClient, st *store.Store, actions []Action, scope DedupeScope) *Rule {
	t.Helper()
	trigger, err := NewTrigger([]string{"foo", "rule 1"}, []reddit.Kind{reddit.KindPost})
	require.NoError(t, err)
	return NewRule(sub, st, 1, testLogger(), RuleConfig{
		Trigger: trigger,
		Remove:  true,
		Lock:    true,
		Actions: actions,
		Name:    "Remove",
		Details: "rule 1",
		Scope:   scope,
	})
}

func TestRuleNoMatchNoSideEffects(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	st := testStore(t)
	rule := removeRule(t, sub, st, nil, DedupeByModerator)

	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "bar", Moderator: "TGB", Target: testPost()}))

	assert.Empty(sub.Removed)
	assert.Empty(sub.Approved)
	acted, err := st.HasAction(ctx, int(reddit.KindPost), mustID(t, "5kgajm"), "")
	require.NoError(t, err)
	assert.False(acted)
}

func TestRuleRemoveLockNotify(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	st := testStore(t)
	notifier := NewNotifier(sub, testLogger(), "A notification")
	rule := removeRule(t, sub, st, []Action{notifier}, DedupeByModerator)

	post := testPost()
	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: post}))

	assert.Equal([]reddit.Fullname{post.Fullname()}, sub.Removed)
	assert.Equal([]reddit.Fullname{post.Fullname()}, sub.Locked)
	assert.Empty(sub.Approved)

	require.Len(t, sub.Replies, 1)
	assert.Contains(sub.Replies[0].Text, "A notification")
	assert.Contains(sub.Replies[0].Text, "I am a bot")
	// replies to posts are stickied
	assert.True(sub.Distinguishes[sub.Replies[0].Name])

	recent, err := st.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal("Remove", recent[0].Summary)
	assert.Equal("rule 1", recent[0].Details)
	assert.Equal("BJO_test_user", recent[0].Author)
	assert.Equal("TGB", recent[0].Moderator)
}

func TestRuleDedupeByModerator(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	st := testStore(t)
	rule := removeRule(t, sub, st, nil, DedupeByModerator)

	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: testPost()}))
	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: testPost()}))
	// repeated report from the same moderator is a no-op
	assert.Len(sub.Removed, 1)

	// a different moderator acts independently under moderator scope
	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "other_mod", Target: testPost()}))
	assert.Len(sub.Removed, 2)
}

func TestRuleDedupeByTarget(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	st := testStore(t)
	rule := removeRule(t, sub, st, nil, DedupeByTarget)

	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: testPost()}))
	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "other_mod", Target: testPost()}))

	assert.Len(sub.Removed, 1)
}

func TestRuleApprovesWithoutRemove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	st := testStore(t)
	trigger, err := NewTrigger([]string{"foo"}, []reddit.Kind{reddit.KindPost})
	require.NoError(t, err)
	rule := NewRule(sub, st, 1, testLogger(), RuleConfig{
		Trigger: trigger,
		Actions: []Action{},
		Name:    "Approve",
	})

	post := testPost()
	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: post}))

	assert.Equal([]reddit.Fullname{post.Fullname()}, sub.Approved)
	assert.Empty(sub.Removed)
	assert.Empty(sub.Locked)
}

func TestRuleDeletedAuthor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	st := testStore(t)
	rule := removeRule(t, sub, st, nil, DedupeByModerator)

	post := testPost()
	post.Author = ""
	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: post}))

	recent, err := st.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal("[deleted]", recent[0].Author)
}

func TestRuleRemoveFailureStillCommits(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sub := NewMockSubreddit("thirdrealm")
	sub.RemoveErr = &reddit.APIError{StatusCode: 500}
	st := testStore(t)
	rule := removeRule(t, sub, st, nil, DedupeByModerator)

	require.NoError(t, rule.Parse(ctx, reddit.Report{Text: "foo", Moderator: "TGB", Target: testPost()}))

	// the audit row survives the failed remote call
	acted, err := st.HasAction(ctx, int(reddit.KindPost), mustID(t, "5kgajm"), "TGB")
	require.NoError(t, err)
	assert.True(acted)
}

func mustID(t *testing.T, id string) int64 {
	t.Helper()
	_, parsed, err := reddit.NewFullname(reddit.KindPost, id).Parse()
	require.NoError(t, err)
	return parsed
}
