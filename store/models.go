package store

import (
	"time"
)

// User is a deduplicated identity cache row, upserted lazily as authors
// and moderators show up in actions.
type User struct {
	ID       uint   `gorm:"primarykey"`
	Username string `gorm:"uniqueIndex"`
}

func (User) TableName() string { return "users" }

// ActionRecord is one append-only audit row. It doubles as the
// idempotence key store: (target_type, target_id[, moderator]) lookups
// decide whether a rule already acted on a target.
type ActionRecord struct {
	ID          int64     `gorm:"primarykey"`
	TargetType  int       `gorm:"column:target_type;index:idx_actions_target"`
	TargetID    int64     `gorm:"column:target_id;index:idx_actions_target"`
	Summary     string    `gorm:"column:action_summary"`
	Details     string    `gorm:"column:action_details"`
	AuthorID    uint      `gorm:"column:author"`
	ModeratorID uint      `gorm:"column:moderator"`
	SubredditID int64     `gorm:"column:subreddit"`
	CreatedAt   time.Time `gorm:"column:time"`
}

func (ActionRecord) TableName() string { return "actions" }

// Removal marks an action whose disposition was a removal.
type Removal struct {
	ID       int64 `gorm:"primarykey"`
	ActionID int64 `gorm:"column:action_id;index"`
}

func (Removal) TableName() string { return "removals" }

// Notification records the reply comment a Notifier posted for an action.
type Notification struct {
	ID        int64 `gorm:"primarykey"`
	CommentID int64 `gorm:"column:comment_id"`
	ActionID  int64 `gorm:"column:action_id;index"`
}

func (Notification) TableName() string { return "notifications" }

// Subreddit caches display metadata for dashboard queries.
type Subreddit struct {
	ID          int64  `gorm:"primarykey"`
	DisplayName string `gorm:"column:display_name"`
	Subscribers int64
}

func (Subreddit) TableName() string { return "subreddits" }

// SubredditModerator is the subreddit-to-moderator relationship, replaced
// wholesale on each metadata refresh.
type SubredditModerator struct {
	SubredditID int64 `gorm:"column:subreddit_id;index"`
	ModeratorID uint  `gorm:"column:moderator_id"`
}

func (SubredditModerator) TableName() string { return "subreddit_moderators" }
