package engine

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/leviroth/bernard/reddit"
)

const (
	// nukeBatchSize caps remote removals issued per cycle.
	nukeBatchSize = 30
	// maxFlushAttempts bounds the optimistic-concurrency retry loop on
	// wiki documents. Sustained conflict beyond this abandons the flush;
	// the buffer stays queued for the next cycle.
	maxFlushAttempts = 10

	userNotesPage     = "usernotes"
	automodConfigPage = "config/automoderator"
)

// Ledger buffers one kind of side effect across a poll cycle and applies
// the whole batch at the end. Buffers are cleared only after a confirmed
// successful flush.
type Ledger interface {
	Name() string
	After(ctx context.Context)
}

// LedgerBuilder hands out one shared ledger instance per kind for a
// subreddit's configuration, so that every rule referencing the same
// action kind converges on a single flush per cycle.
type LedgerBuilder struct {
	sub    SubredditClient
	logger *slog.Logger

	nuke    *NukeLedger
	notes   *NoteLedger
	watcher *WatcherLedger
}

func NewLedgerBuilder(sub SubredditClient, logger *slog.Logger) *LedgerBuilder {
	return &LedgerBuilder{sub: sub, logger: logger}
}

func (b *LedgerBuilder) Nuke() *NukeLedger {
	if b.nuke == nil {
		b.nuke = &NukeLedger{sub: b.sub, logger: b.logger}
	}
	return b.nuke
}

func (b *LedgerBuilder) Notes() *NoteLedger {
	if b.notes == nil {
		b.notes = &NoteLedger{sub: b.sub, logger: b.logger}
	}
	return b.notes
}

func (b *LedgerBuilder) Watcher() *WatcherLedger {
	if b.watcher == nil {
		b.watcher = &WatcherLedger{sub: b.sub, logger: b.logger, buckets: make(map[string][]string)}
	}
	return b.watcher
}

// Ledgers returns every instantiated ledger, each exactly once.
func (b *LedgerBuilder) Ledgers() []Ledger {
	var out []Ledger
	if b.nuke != nil {
		out = append(out, b.nuke)
	}
	if b.notes != nil {
		out = append(out, b.notes)
	}
	if b.watcher != nil {
		out = append(out, b.watcher)
	}
	return out
}

// NukeLedger is a FIFO queue of pending comment removals, drained up to
// nukeBatchSize per cycle to bound burst request volume.
type NukeLedger struct {
	sub    SubredditClient
	logger *slog.Logger
	queue  []reddit.Fullname
}

func (l *NukeLedger) Name() string { return "nuke" }

func (l *NukeLedger) Add(target reddit.Fullname) {
	l.queue = append(l.queue, target)
}

// Pending returns the number of queued removals.
func (l *NukeLedger) Pending() int { return len(l.queue) }

func (l *NukeLedger) After(ctx context.Context) {
	for i := 0; i < nukeBatchSize && len(l.queue) > 0; i++ {
		target := l.queue[0]
		l.queue = l.queue[1:]
		if err := l.sub.Remove(ctx, target); err != nil {
			l.logger.Error("failed to remove comment", "target", target, "err", err)
			ledgerFlushErrorCount.WithLabelValues(l.Name()).Inc()
		}
	}
	ledgerFlushCount.WithLabelValues(l.Name()).Inc()
}

// NoteLedger accumulates Toolbox usernotes and flushes them in one
// conflict-safe update of the usernotes wiki document.
type NoteLedger struct {
	sub    SubredditClient
	logger *slog.Logger
	notes  []UserNote
}

func (l *NoteLedger) Name() string { return "usernotes" }

func (l *NoteLedger) Add(note UserNote) {
	l.notes = append(l.notes, note)
}

// Pending returns the queued notes. The returned slice is the live buffer.
func (l *NoteLedger) Pending() []UserNote { return l.notes }

func (l *NoteLedger) After(ctx context.Context) {
	if len(l.notes) == 0 {
		return
	}
	err := updateWikiPage(ctx, l.sub, userNotesPage, "bernard: add usernotes", l.transform, l.logger)
	if err != nil {
		l.logger.Error("failed to update toolbox usernotes", "err", err)
		ledgerFlushErrorCount.WithLabelValues(l.Name()).Inc()
		return
	}
	l.notes = nil
	ledgerFlushCount.WithLabelValues(l.Name()).Inc()
}

// WatcherLedger accumulates placeholder buckets destined for the
// automoderator configuration document.
type WatcherLedger struct {
	sub     SubredditClient
	logger  *slog.Logger
	buckets map[string][]string
}

func (l *WatcherLedger) Name() string { return "automod-watch" }

func (l *WatcherLedger) Add(placeholder, value string) {
	l.buckets[placeholder] = append(l.buckets[placeholder], value)
}

// Bucket returns the pending values for a placeholder.
func (l *WatcherLedger) Bucket(placeholder string) []string {
	return l.buckets[placeholder]
}

func (l *WatcherLedger) After(ctx context.Context) {
	var flushed []string
	for placeholder, values := range l.buckets {
		if len(values) > 0 {
			flushed = append(flushed, placeholder)
		}
	}
	// an empty ledger performs no network call at all
	if len(flushed) == 0 {
		return
	}

	transform := func(content string) (string, error) {
		content = html.UnescapeString(content)
		for _, placeholder := range flushed {
			joined := strings.Join(append([]string{placeholder}, l.buckets[placeholder]...), ", ")
			content = strings.ReplaceAll(content, placeholder, joined)
		}
		return content, nil
	}

	err := updateWikiPage(ctx, l.sub, automodConfigPage, "bernard: update watch lists", transform, l.logger)
	if err != nil {
		l.logger.Error("failed to update automod config", "err", err)
		ledgerFlushErrorCount.WithLabelValues(l.Name()).Inc()
		return
	}
	for _, placeholder := range flushed {
		delete(l.buckets, placeholder)
	}
	ledgerFlushCount.WithLabelValues(l.Name()).Inc()
}

// updateWikiPage performs a read-modify-write against a versioned wiki
// document. On an edit conflict the transform is re-applied to the
// server-supplied fresh content and the save retried, without an
// independent re-fetch, up to maxFlushAttempts times.
func updateWikiPage(ctx context.Context, sub SubredditClient, page, reason string, transform func(string) (string, error), logger *slog.Logger) error {
	content, revision, err := sub.WikiPage(ctx, page)
	if err != nil {
		return err
	}
	for attempt := 1; attempt <= maxFlushAttempts; attempt++ {
		updated, err := transform(content)
		if err != nil {
			return err
		}
		err = sub.SaveWikiPage(ctx, page, updated, revision, reason)
		var conflict *reddit.WikiConflictError
		if errors.As(err, &conflict) {
			logger.Info("wiki edit conflict, reapplying transform", "page", page, "attempt", attempt)
			wikiConflictCount.WithLabelValues(page).Inc()
			content = conflict.Content
			revision = conflict.RevisionID
			continue
		}
		return err
	}
	return fmt.Errorf("giving up on %s after %d edit conflicts", page, maxFlushAttempts)
}
