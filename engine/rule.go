package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leviroth/bernard/reddit"
	"github.com/leviroth/bernard/store"
)

// DedupeScope picks the idempotence key for the already-acted check.
type DedupeScope int

const (
	// DedupeByModerator keys on (target type, target id, moderator).
	DedupeByModerator DedupeScope = iota
	// DedupeByTarget keys on (target type, target id) alone.
	DedupeByTarget
)

// RuleConfig is the immutable configuration for one rule.
type RuleConfig struct {
	Trigger *Trigger
	Remove  bool
	Lock    bool
	Actions []Action
	Name    string
	Details string
	Scope   DedupeScope
}

// Rule matches reports against its trigger and carries out the configured
// response: dedup-check, audit log, action fan-out, disposition, commit.
// One instance per configured rule, for the subreddit's whole process
// lifetime.
type Rule struct {
	RuleConfig

	sub         SubredditClient
	store       *store.Store
	subredditID int64
	logger      *slog.Logger
}

func NewRule(sub SubredditClient, st *store.Store, subredditID int64, logger *slog.Logger, cfg RuleConfig) *Rule {
	return &Rule{
		RuleConfig:  cfg,
		sub:         sub,
		store:       st,
		subredditID: subredditID,
		logger:      logger.With("rule", cfg.Name, "subreddit", sub.Name()),
	}
}

// Parse executes the configured response if the report matches the
// trigger. Each call is one terminal pass: no-op on mismatch or prior
// action, otherwise a single committed transaction.
func (r *Rule) Parse(ctx context.Context, rep reddit.Report) error {
	if !r.Trigger.Match(rep.Text, rep.Target) {
		return nil
	}

	kind, targetID, err := rep.Target.Fullname().Parse()
	if err != nil {
		return err
	}

	acted, err := r.alreadyActed(ctx, int(kind), targetID, rep.Moderator)
	if err != nil {
		return err
	}
	if acted {
		return nil
	}

	ruleMatchCount.WithLabelValues(r.sub.Name(), r.Name).Inc()

	return r.store.WithTx(ctx, func(tx *store.Store) error {
		actionID, err := r.logAction(ctx, tx, int(kind), targetID, rep)
		if err != nil {
			return err
		}
		for _, action := range r.Actions {
			if err := action.Act(ctx, tx, rep.Target, rep.Moderator, actionID); err != nil {
				return err
			}
		}
		return r.dispose(ctx, tx, rep.Target, kind, actionID)
	})
}

// alreadyActed runs the idempotence check, logging repeat observations.
func (r *Rule) alreadyActed(ctx context.Context, targetType int, targetID int64, moderator string) (bool, error) {
	scopeModerator := moderator
	if r.Scope == DedupeByTarget {
		scopeModerator = ""
	}
	acted, err := r.store.HasAction(ctx, targetType, targetID, scopeModerator)
	if err != nil {
		return false, err
	}
	if acted {
		if previous, err := r.store.ActionModerators(ctx, targetType, targetID); err == nil && len(previous) > 0 {
			r.logger.Info("saw repeated action", "target_type", targetType, "target_id", targetID, "previous", previous)
		}
	}
	return acted, nil
}

// logAction upserts the author and moderator identities and appends the
// audit row, returning its id.
func (r *Rule) logAction(ctx context.Context, tx *store.Store, targetType int, targetID int64, rep reddit.Report) (int64, error) {
	authorName := rep.Target.AuthorName()
	if authorName == "" {
		authorName = deletedUser
	}
	authorID, err := tx.GetOrCreateUser(ctx, authorName)
	if err != nil {
		return 0, err
	}
	moderatorID, err := tx.GetOrCreateUser(ctx, rep.Moderator)
	if err != nil {
		return 0, err
	}

	rec := &store.ActionRecord{
		TargetType:  targetType,
		TargetID:    targetID,
		Summary:     r.Name,
		Details:     r.Details,
		AuthorID:    authorID,
		ModeratorID: moderatorID,
		SubredditID: r.subredditID,
	}
	if err := tx.RecordAction(ctx, rec); err != nil {
		return 0, err
	}
	r.logger.Info("rule action", "summary", r.Name, "details", r.Details,
		"target", rep.Target.Fullname(), "moderator", rep.Moderator, "author", authorName)
	return rec.ID, nil
}

// dispose removes or approves the target. Remote failures are logged, not
// raised: the moderation intent is already recorded in the audit row.
func (r *Rule) dispose(ctx context.Context, tx *store.Store, target reddit.Target, kind reddit.Kind, actionID int64) error {
	if !r.Remove {
		if err := r.sub.Approve(ctx, target.Fullname()); err != nil {
			r.logger.Error("failed to approve", "target", target.Fullname(), "err", err)
			actionErrorCount.WithLabelValues("approve").Inc()
		}
		return nil
	}

	if err := r.sub.Remove(ctx, target.Fullname()); err != nil {
		r.logger.Error("failed to remove", "target", target.Fullname(), "err", err)
		actionErrorCount.WithLabelValues("remove").Inc()
	}
	if err := tx.AddRemoval(ctx, actionID); err != nil {
		return err
	}
	if r.Lock && kind == reddit.KindPost {
		if err := r.sub.Lock(ctx, target.Fullname()); err != nil {
			r.logger.Error("failed to lock", "target", target.Fullname(), "err", err)
			actionErrorCount.WithLabelValues("lock").Inc()
		}
	}
	return nil
}

func (r *Rule) String() string {
	return fmt.Sprintf("Rule(%s)", r.Name)
}
