package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/leviroth/bernard/reddit"
	"github.com/leviroth/bernard/store"
)

// deletedUser is logged in place of an author whose account is gone.
const deletedUser = "[deleted]"

// Action is one side-effecting response primitive, configured once at load
// time with fixed parameters. Act catches and logs remote-call failures;
// the returned error is reserved for audit-store writes, which must roll
// back the enclosing rule pass.
type Action interface {
	Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error
	// ValidKinds lists the target types the action supports, checked
	// against the rule's target types at configuration-load time.
	ValidKinds() []reddit.Kind
}

var postAndComment = []reddit.Kind{reddit.KindPost, reddit.KindComment}
var postOnly = []reddit.Kind{reddit.KindPost}

// Banner adds the target's author to the subreddit ban list.
type Banner struct {
	sub     SubredditClient
	logger  *slog.Logger
	message string
	reason  string
	days    int
}

func NewBanner(sub SubredditClient, logger *slog.Logger, message, reason string, days int) *Banner {
	return &Banner{sub: sub, logger: logger, message: message, reason: reason, days: days}
}

func (b *Banner) ValidKinds() []reddit.Kind { return postAndComment }

func (b *Banner) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	author := target.AuthorName()
	if author == "" {
		b.logger.Info("skipping ban of deleted account", "target", target.Fullname())
		return nil
	}
	reason := truncate(fmt.Sprintf("%s - by %s", b.reason, moderator), 300)
	req := reddit.BanRequest{
		User:    author,
		Message: b.message + banFooter(target),
		Reason:  reason,
		Days:    b.days,
	}
	if err := b.sub.Ban(ctx, req); err != nil {
		b.logger.Error("failed to ban", "user", author, "target", target.Fullname(), "err", err)
		actionErrorCount.WithLabelValues("ban").Inc()
	}
	return nil
}

func banFooter(target reddit.Target) string {
	permalink := (&url.URL{Path: target.Link()}).EscapedPath()
	return fmt.Sprintf("\n\nThis action was taken because of the following %s: %s", target.Kind(), permalink)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Notifier replies to the target with configured text plus a bot
// disclosure footer, then distinguishes the reply (stickied on posts).
type Notifier struct {
	sub    SubredditClient
	logger *slog.Logger
	text   string
}

func NewNotifier(sub SubredditClient, logger *slog.Logger, text string) *Notifier {
	return &Notifier{sub: sub, logger: logger, text: text}
}

func (n *Notifier) ValidKinds() []reddit.Kind { return postAndComment }

func (n *Notifier) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	text := n.text + n.footer(target.Link())

	replyName, err := n.sub.Reply(ctx, target.Fullname(), text)
	if errors.Is(err, reddit.ErrArchived) {
		n.logger.Info("too old to reply", "target", target.Fullname())
		return nil
	}
	if err != nil {
		n.logger.Error("failed to add comment", "target", target.Fullname(), "err", err)
		actionErrorCount.WithLabelValues("notify").Inc()
		return nil
	}

	sticky := target.Kind() == reddit.KindPost
	if err := n.sub.Distinguish(ctx, replyName, sticky); err != nil {
		n.logger.Error("failed to distinguish comment", "comment", replyName, "err", err)
		actionErrorCount.WithLabelValues("notify").Inc()
	}

	_, commentID, err := replyName.Parse()
	if err != nil {
		n.logger.Error("unparseable reply fullname", "comment", replyName, "err", err)
		return nil
	}
	return tx.AddNotification(ctx, commentID, actionID)
}

func (n *Notifier) footer(permalink string) string {
	base := n.sub.BaseURL()
	escaped := url.QueryEscape(base + permalink)
	modmailLink := fmt.Sprintf("%s/message/compose?to=%%2Fr%%2F%s&message=Post%%20in%%20question:%%20%s",
		base, n.sub.Name(), escaped)
	return fmt.Sprintf("\n\n-----\n\nI am a bot. Please do not reply to this message, as "+
		"it will go unread. Instead, [contact the moderators](%s) with "+
		"questions or comments.", modmailLink)
}

// Locker locks posts without necessarily removing them.
type Locker struct {
	sub    SubredditClient
	logger *slog.Logger
}

func NewLocker(sub SubredditClient, logger *slog.Logger) *Locker {
	return &Locker{sub: sub, logger: logger}
}

func (l *Locker) ValidKinds() []reddit.Kind { return postOnly }

func (l *Locker) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	if err := l.sub.Lock(ctx, target.Fullname()); err != nil {
		l.logger.Error("failed to lock", "target", target.Fullname(), "err", err)
		actionErrorCount.WithLabelValues("lock").Inc()
	}
	return nil
}

// Modmailer sends a modmail message to the target's author with the
// sending moderator's identity hidden.
type Modmailer struct {
	sub     SubredditClient
	logger  *slog.Logger
	subject string
	body    string
}

func NewModmailer(sub SubredditClient, logger *slog.Logger, subject, body string) *Modmailer {
	return &Modmailer{sub: sub, logger: logger, subject: subject, body: body}
}

func (m *Modmailer) ValidKinds() []reddit.Kind { return postAndComment }

func (m *Modmailer) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	author := target.AuthorName()
	if author == "" {
		m.logger.Info("skipping modmail to deleted account", "target", target.Fullname())
		return nil
	}
	if err := m.sub.SendModmail(ctx, m.subject, m.body, author); err != nil {
		m.logger.Error("failed to send modmail", "target", target.Fullname(), "err", err)
		actionErrorCount.WithLabelValues("modmail").Inc()
	}
	return nil
}

// Nuker enqueues removal of every non-distinguished reply underneath the
// target comment. The target itself is untouched. Posts are accepted for
// configuration compatibility but skipped.
type Nuker struct {
	sub    SubredditClient
	logger *slog.Logger
	ledger *NukeLedger
}

func NewNuker(sub SubredditClient, logger *slog.Logger, ledger *NukeLedger) *Nuker {
	return &Nuker{sub: sub, logger: logger, ledger: ledger}
}

func (n *Nuker) ValidKinds() []reddit.Kind { return postAndComment }

func (n *Nuker) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	comment, ok := target.(*reddit.Comment)
	if !ok {
		return nil
	}
	replies, err := n.sub.CommentTree(ctx, comment)
	if err != nil {
		n.logger.Error("failed to retrieve comment tree", "target", target.Fullname(), "err", err)
		actionErrorCount.WithLabelValues("nuke").Inc()
		return nil
	}
	for _, reply := range replies {
		if reply.Distinguished == "" {
			n.ledger.Add(reply.Fullname())
		}
	}
	return nil
}

// ToolboxNoteAdder records a moderation annotation for the target's author
// into the shared usernote ledger, written to the wiki at end of cycle.
type ToolboxNoteAdder struct {
	ledger *NoteLedger
	text   string
	level  string
}

func NewToolboxNoteAdder(ledger *NoteLedger, text, level string) *ToolboxNoteAdder {
	return &ToolboxNoteAdder{ledger: ledger, text: text, level: level}
}

func (a *ToolboxNoteAdder) ValidKinds() []reddit.Kind { return postAndComment }

func (a *ToolboxNoteAdder) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	author := target.AuthorName()
	if author == "" {
		author = deletedUser
	}
	a.ledger.Add(UserNote{
		Author:    author,
		Level:     a.level,
		Link:      toolboxLink(target),
		Moderator: moderator,
		Text:      a.text,
		Time:      time.Now().Unix(),
	})
	return nil
}

// toolboxLink renders the target's location in Toolbox's compressed form.
func toolboxLink(target reddit.Target) string {
	switch t := target.(type) {
	case *reddit.Post:
		return fmt.Sprintf("l,%s", t.ID)
	case *reddit.Comment:
		return fmt.Sprintf("l,%s,%s", t.PostID, t.ID)
	default:
		return ""
	}
}

// AutomodDomainWatcher appends the post's domain into a named placeholder
// bucket for batch insertion into the automoderator configuration.
type AutomodDomainWatcher struct {
	ledger      *WatcherLedger
	placeholder string
}

func NewAutomodDomainWatcher(ledger *WatcherLedger, placeholder string) *AutomodDomainWatcher {
	return &AutomodDomainWatcher{ledger: ledger, placeholder: placeholder}
}

func (w *AutomodDomainWatcher) ValidKinds() []reddit.Kind { return postOnly }

func (w *AutomodDomainWatcher) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	post, ok := target.(*reddit.Post)
	if !ok {
		return nil
	}
	w.ledger.Add(w.placeholder, post.Domain)
	return nil
}

// AutomodUserWatcher appends the target's author into a named placeholder
// bucket for batch insertion into the automoderator configuration.
type AutomodUserWatcher struct {
	ledger      *WatcherLedger
	logger      *slog.Logger
	placeholder string
}

func NewAutomodUserWatcher(ledger *WatcherLedger, logger *slog.Logger, placeholder string) *AutomodUserWatcher {
	return &AutomodUserWatcher{ledger: ledger, logger: logger, placeholder: placeholder}
}

func (w *AutomodUserWatcher) ValidKinds() []reddit.Kind { return postAndComment }

func (w *AutomodUserWatcher) Act(ctx context.Context, tx *store.Store, target reddit.Target, moderator string, actionID int64) error {
	author := target.AuthorName()
	if author == "" {
		w.logger.Info("skipping watch of deleted account", "target", target.Fullname())
		return nil
	}
	w.ledger.Add(w.placeholder, author)
	return nil
}
