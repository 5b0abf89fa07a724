package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the relational audit database. All methods are safe to call
// on a transaction-scoped Store obtained via WithTx.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit schema.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&User{},
		&ActionRecord{},
		&Removal{},
		&Notification{},
		&Subreddit{},
		&SubredditModerator{},
	)
}

// WithTx runs fn with a Store bound to a single transaction; fn returning
// an error rolls the whole logical unit back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// GetOrCreateUser returns the id for a username, inserting it on first
// sight.
func (s *Store) GetOrCreateUser(ctx context.Context, username string) (uint, error) {
	var user User
	err := s.db.WithContext(ctx).Where(User{Username: username}).FirstOrCreate(&user).Error
	if err != nil {
		return 0, fmt.Errorf("upserting user %q: %w", username, err)
	}
	return user.ID, nil
}

// HasAction reports whether an audit row already exists for the target.
// With a non-empty moderator the check is scoped to that moderator.
func (s *Store) HasAction(ctx context.Context, targetType int, targetID int64, moderator string) (bool, error) {
	q := s.db.WithContext(ctx).Model(&ActionRecord{}).
		Where("target_type = ? AND target_id = ?", targetType, targetID)
	if moderator != "" {
		q = q.Joins("INNER JOIN users ON actions.moderator = users.id").
			Where("users.username = ?", moderator)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking prior actions: %w", err)
	}
	return count > 0, nil
}

// ActionModerators lists the moderators with prior actions on the target,
// for logging repeat-action observations.
func (s *Store) ActionModerators(ctx context.Context, targetType int, targetID int64) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&ActionRecord{}).
		Joins("INNER JOIN users ON actions.moderator = users.id").
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Pluck("users.username", &names).Error
	if err != nil {
		return nil, fmt.Errorf("listing prior moderators: %w", err)
	}
	return names, nil
}

// RecordAction inserts an audit row and populates its id.
func (s *Store) RecordAction(ctx context.Context, rec *ActionRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("recording action: %w", err)
	}
	return nil
}

func (s *Store) AddRemoval(ctx context.Context, actionID int64) error {
	if err := s.db.WithContext(ctx).Create(&Removal{ActionID: actionID}).Error; err != nil {
		return fmt.Errorf("recording removal: %w", err)
	}
	return nil
}

func (s *Store) AddNotification(ctx context.Context, commentID, actionID int64) error {
	rec := &Notification{CommentID: commentID, ActionID: actionID}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("recording notification: %w", err)
	}
	return nil
}

// UpsertSubreddit refreshes the cached subreddit metadata row.
func (s *Store) UpsertSubreddit(ctx context.Context, sub *Subreddit) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("upserting subreddit %d: %w", sub.ID, err)
	}
	return nil
}

// ReplaceModerators swaps the moderator list for a subreddit wholesale.
func (s *Store) ReplaceModerators(ctx context.Context, subredditID int64, moderators []string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("subreddit_id = ?", subredditID).Delete(&SubredditModerator{}).Error; err != nil {
		return fmt.Errorf("clearing moderators: %w", err)
	}
	for _, name := range moderators {
		id, err := s.GetOrCreateUser(ctx, name)
		if err != nil {
			return err
		}
		rel := &SubredditModerator{SubredditID: subredditID, ModeratorID: id}
		if err := db.Create(rel).Error; err != nil {
			return fmt.Errorf("adding moderator %q: %w", name, err)
		}
	}
	return nil
}

// RecentAction is the dashboard view of an audit row.
type RecentAction struct {
	ID         int64     `json:"id"`
	TargetType int       `json:"target_type"`
	TargetID   int64     `json:"target_id"`
	Summary    string    `json:"summary"`
	Details    string    `json:"details"`
	Author     string    `json:"author"`
	Moderator  string    `json:"moderator"`
	Subreddit  string    `json:"subreddit"`
	Time       time.Time `json:"time"`
}

// RecentActions returns the newest audit rows, joined with usernames, for
// the debug server.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]RecentAction, error) {
	var out []RecentAction
	err := s.db.WithContext(ctx).Model(&ActionRecord{}).
		Select("actions.id, actions.target_type, actions.target_id, " +
			"actions.action_summary AS summary, actions.action_details AS details, " +
			"authors.username AS author, mods.username AS moderator, " +
			"subreddits.display_name AS subreddit, actions.time").
		Joins("INNER JOIN users authors ON actions.author = authors.id").
		Joins("INNER JOIN users mods ON actions.moderator = mods.id").
		Joins("LEFT JOIN subreddits ON actions.subreddit = subreddits.id").
		Order("actions.id DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing recent actions: %w", err)
	}
	return out, nil
}

// SetupDatabase opens a gorm handle from a DATABASE_URL-style string
// ("sqlite://path" or "postgres://..."), with pragmas and pool settings
// suitable for a single-process poller.
func SetupDatabase(dburl string, maxConnections int) (*gorm.DB, error) {
	var dial gorm.Dialector

	isSqlite := false
	openConns := maxConnections
	if strings.HasPrefix(dburl, "sqlite://") {
		sqliteSuffix := dburl[len("sqlite://"):]
		// if this isn't ":memory:", ensure that directory exists (eg, if db
		// file is being initialized)
		if !strings.Contains(sqliteSuffix, ":?") {
			os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm)
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	} else if strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://") {
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	} else {
		return nil, fmt.Errorf("unsupported or unrecognized DATABASE_URL value: %s", dburl)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxIdleConns(openConns)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		// Set pragmas for sqlite
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}
