package engine

import (
	"context"

	"github.com/leviroth/bernard/reddit"
)

// SubredditClient is the slice of the platform API the engine consumes.
// Call ordering and batching happen here; transport, retries, and
// credentials live behind this interface.
type SubredditClient interface {
	Name() string
	BaseURL() string
	ModReports(ctx context.Context, after string) (*reddit.ModReportsPage, error)
	Ban(ctx context.Context, req reddit.BanRequest) error
	Reply(ctx context.Context, parent reddit.Fullname, text string) (reddit.Fullname, error)
	Distinguish(ctx context.Context, comment reddit.Fullname, sticky bool) error
	Lock(ctx context.Context, target reddit.Fullname) error
	Remove(ctx context.Context, target reddit.Fullname) error
	Approve(ctx context.Context, target reddit.Fullname) error
	SendModmail(ctx context.Context, subject, body, recipient string) error
	CommentTree(ctx context.Context, comment *reddit.Comment) ([]*reddit.Comment, error)
	WikiPage(ctx context.Context, page string) (content, revisionID string, err error)
	SaveWikiPage(ctx context.Context, page, content, baseRevision, reason string) error
	About(ctx context.Context) (*reddit.SubredditInfo, error)
	Moderators(ctx context.Context) ([]string, error)
}

var _ SubredditClient = (*reddit.Subreddit)(nil)
