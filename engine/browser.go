package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/leviroth/bernard/reddit"
	"github.com/leviroth/bernard/store"
)

// Browser pulls a subreddit's moderator-report queue, feeds each report to
// every rule, then flushes all ledgers once per cycle.
type Browser struct {
	sub         SubredditClient
	store       *store.Store
	subredditID int64
	rules       []*Rule
	ledgers     []Ledger
	logger      *slog.Logger
}

func NewBrowser(sub SubredditClient, st *store.Store, subredditID int64, logger *slog.Logger, rules []*Rule, ledgers []Ledger) *Browser {
	return &Browser{
		sub:         sub,
		store:       st,
		subredditID: subredditID,
		rules:       rules,
		ledgers:     ledgers,
		logger:      logger.With("subreddit", sub.Name()),
	}
}

func (b *Browser) SubredditName() string { return b.sub.Name() }

// Rules exposes the configured rules, for the debug surface.
func (b *Browser) Rules() []*Rule { return b.rules }

// Ledgers exposes the shared ledgers flushed each cycle.
func (b *Browser) Ledgers() []Ledger { return b.ledgers }

// Run executes one poll cycle: dispatch every report to every rule, then
// call After on every distinct ledger exactly once.
func (b *Browser) Run(ctx context.Context) {
	start := time.Now()
	b.checkReports(ctx)
	for _, ledger := range b.ledgers {
		b.flushLedger(ctx, ledger)
	}
	cycleDuration.WithLabelValues(b.sub.Name()).Observe(time.Since(start).Seconds())
}

// checkReports pages through the report queue. A transport failure ends
// this cycle's iteration early; reports already processed keep their
// effects.
func (b *Browser) checkReports(ctx context.Context) {
	after := ""
	for {
		page, err := b.sub.ModReports(ctx, after)
		if err != nil {
			b.logger.Error("error fetching reports", "err", err)
			return
		}
		for _, target := range page.Targets {
			for _, mr := range target.Reports() {
				if ctx.Err() != nil {
					return
				}
				b.processReport(ctx, reddit.Report{Text: mr.Text, Moderator: mr.Moderator, Target: target})
			}
		}
		if page.After == "" {
			return
		}
		after = page.After
	}
}

func (b *Browser) processReport(ctx context.Context, rep reddit.Report) {
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("rule execution exception", "err", r, "target", rep.Target.Fullname())
		}
	}()

	reportCount.WithLabelValues(b.sub.Name()).Inc()
	for _, rule := range b.rules {
		if err := rule.Parse(ctx, rep); err != nil {
			b.logger.Error("rule pass failed", "rule", rule.Name, "target", rep.Target.Fullname(), "err", err)
		}
	}
}

func (b *Browser) flushLedger(ctx context.Context, ledger Ledger) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("ledger flush exception", "err", r, "ledger", ledger.Name())
		}
	}()
	ledger.After(ctx)
}

// RefreshMetadata updates the cached subreddit row and moderator list.
func (b *Browser) RefreshMetadata(ctx context.Context) error {
	info, err := b.sub.About(ctx)
	if err != nil {
		return err
	}
	moderators, err := b.sub.Moderators(ctx)
	if err != nil {
		return err
	}
	return b.store.WithTx(ctx, func(tx *store.Store) error {
		sub := &store.Subreddit{
			ID:          b.subredditID,
			DisplayName: info.DisplayName,
			Subscribers: info.Subscribers,
		}
		if err := tx.UpsertSubreddit(ctx, sub); err != nil {
			return err
		}
		return tx.ReplaceModerators(ctx, b.subredditID, moderators)
	})
}
