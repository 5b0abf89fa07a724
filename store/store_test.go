package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	st := NewStore(db)
	require.NoError(t, st.AutoMigrate())
	return st
}

func recordTestAction(t *testing.T, st *Store, targetID int64, author, moderator string) *ActionRecord {
	t.Helper()
	ctx := context.Background()
	authorID, err := st.GetOrCreateUser(ctx, author)
	require.NoError(t, err)
	modID, err := st.GetOrCreateUser(ctx, moderator)
	require.NoError(t, err)
	rec := &ActionRecord{
		TargetType:  3,
		TargetID:    targetID,
		Summary:     "Remove",
		Details:     "rule 1",
		AuthorID:    authorID,
		ModeratorID: modID,
		SubredditID: 1,
	}
	require.NoError(t, st.RecordAction(ctx, rec))
	return rec
}

func TestGetOrCreateUser(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	first, err := st.GetOrCreateUser(ctx, "alice")
	require.NoError(t, err)
	again, err := st.GetOrCreateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(first, again)

	other, err := st.GetOrCreateUser(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(first, other)
}

func TestHasActionScoping(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	recordTestAction(t, st, 42, "alice", "TGB")

	acted, err := st.HasAction(ctx, 3, 42, "")
	require.NoError(t, err)
	assert.True(acted)

	acted, err = st.HasAction(ctx, 3, 42, "TGB")
	require.NoError(t, err)
	assert.True(acted)

	// a different moderator has not acted on this target
	acted, err = st.HasAction(ctx, 3, 42, "other_mod")
	require.NoError(t, err)
	assert.False(acted)

	// same id under a different target type is a distinct target
	acted, err = st.HasAction(ctx, 1, 42, "")
	require.NoError(t, err)
	assert.False(acted)
}

func TestActionModerators(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	recordTestAction(t, st, 42, "alice", "TGB")
	recordTestAction(t, st, 42, "alice", "other_mod")

	names, err := st.ActionModerators(ctx, 3, 42)
	require.NoError(t, err)
	assert.ElementsMatch([]string{"TGB", "other_mod"}, names)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	err := st.WithTx(ctx, func(tx *Store) error {
		recordTestAction(t, tx, 42, "alice", "TGB")
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	acted, err := st.HasAction(ctx, 3, 42, "")
	require.NoError(t, err)
	assert.False(acted)
}

func TestUpsertSubreddit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	require.NoError(t, st.UpsertSubreddit(ctx, &Subreddit{ID: 1, DisplayName: "thirdrealm", Subscribers: 100}))
	require.NoError(t, st.UpsertSubreddit(ctx, &Subreddit{ID: 1, DisplayName: "thirdrealm", Subscribers: 150}))

	var sub Subreddit
	require.NoError(t, st.db.First(&sub, 1).Error)
	assert.Equal(int64(150), sub.Subscribers)

	var count int64
	require.NoError(t, st.db.Model(&Subreddit{}).Count(&count).Error)
	assert.Equal(int64(1), count)
}

func TestReplaceModerators(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	require.NoError(t, st.ReplaceModerators(ctx, 1, []string{"TGB", "other_mod"}))
	require.NoError(t, st.ReplaceModerators(ctx, 1, []string{"TGB", "new_mod"}))

	var rels []SubredditModerator
	require.NoError(t, st.db.Where("subreddit_id = ?", 1).Find(&rels).Error)
	require.Len(t, rels, 2)

	var names []string
	for _, rel := range rels {
		var user User
		require.NoError(t, st.db.First(&user, rel.ModeratorID).Error)
		names = append(names, user.Username)
	}
	assert.ElementsMatch([]string{"TGB", "new_mod"}, names)
}

func TestRecentActions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	require.NoError(t, st.UpsertSubreddit(ctx, &Subreddit{ID: 1, DisplayName: "thirdrealm", Subscribers: 100}))
	first := recordTestAction(t, st, 41, "alice", "TGB")
	second := recordTestAction(t, st, 42, "bob", "other_mod")
	require.NoError(t, st.AddRemoval(ctx, second.ID))

	recent, err := st.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// newest first
	assert.Equal(second.ID, recent[0].ID)
	assert.Equal("bob", recent[0].Author)
	assert.Equal("other_mod", recent[0].Moderator)
	assert.Equal("thirdrealm", recent[0].Subreddit)
	assert.Equal(first.ID, recent[1].ID)

	limited, err := st.RecentActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(second.ID, limited[0].ID)
}
