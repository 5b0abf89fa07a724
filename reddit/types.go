package reddit

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the numeric "thing type" from reddit fullnames (t1_, t3_, etc).
type Kind int

const (
	KindComment   Kind = 1
	KindPost      Kind = 3
	KindSubreddit Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindPost:
		return "post"
	case KindSubreddit:
		return "subreddit"
	default:
		return fmt.Sprintf("t%d", int(k))
	}
}

// ParseKind maps a configuration target-type name to a Kind. Only the two
// moderatable target types are accepted here.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "comment":
		return KindComment, nil
	case "post":
		return KindPost, nil
	default:
		return 0, fmt.Errorf("unknown target type: %q", s)
	}
}

// Fullname is reddit's globally-unique thing identifier, eg "t3_abc123".
type Fullname string

// Parse splits a fullname into its thing type and base-36 decoded id.
func (f Fullname) Parse() (Kind, int64, error) {
	s := string(f)
	if len(s) < 4 || s[0] != 't' {
		return 0, 0, fmt.Errorf("malformed fullname: %q", s)
	}
	typ, rest, ok := strings.Cut(s[1:], "_")
	if !ok {
		return 0, 0, fmt.Errorf("malformed fullname: %q", s)
	}
	kind, err := strconv.Atoi(typ)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed fullname type: %q", s)
	}
	id, err := strconv.ParseInt(rest, 36, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed fullname id: %q", s)
	}
	return Kind(kind), id, nil
}

// NewFullname builds a fullname from a thing type and base-36 id.
func NewFullname(kind Kind, id string) Fullname {
	return Fullname(fmt.Sprintf("t%d_%s", int(kind), id))
}

// ModReport is one (report text, moderator) pair attached to a target.
type ModReport struct {
	Text      string
	Moderator string
}

// Target is a reported thing a rule can act on: a post or a comment.
type Target interface {
	Kind() Kind
	Fullname() Fullname
	// AuthorName is empty when the author's account no longer exists.
	AuthorName() string
	// Link is the site-relative permalink path.
	Link() string
	Body() string
	// Reports lists the (text, moderator) report pairs on the target.
	Reports() []ModReport
}

// Post is a top-level submission.
type Post struct {
	ID         string
	Author     string
	Title      string
	SelfText   string
	URL        string
	Domain     string
	Permalink  string
	Locked     bool
	ModReports []ModReport
}

func (p *Post) Kind() Kind           { return KindPost }
func (p *Post) Fullname() Fullname   { return NewFullname(KindPost, p.ID) }
func (p *Post) AuthorName() string   { return p.Author }
func (p *Post) Link() string         { return p.Permalink }
func (p *Post) Body() string         { return p.SelfText }
func (p *Post) Reports() []ModReport { return p.ModReports }

// Comment is a reply underneath a post or another comment.
type Comment struct {
	ID        string
	Author    string
	BodyText  string
	PostID    string
	Permalink string
	// Distinguished is empty for ordinary comments, "moderator" or "admin"
	// for official ones.
	Distinguished string
	ModReports    []ModReport
}

func (c *Comment) Kind() Kind           { return KindComment }
func (c *Comment) Fullname() Fullname   { return NewFullname(KindComment, c.ID) }
func (c *Comment) AuthorName() string   { return c.Author }
func (c *Comment) Link() string         { return c.Permalink }
func (c *Comment) Body() string         { return c.BodyText }
func (c *Comment) Reports() []ModReport { return c.ModReports }

// Report is one entry from the moderator-report queue.
type Report struct {
	Text      string
	Moderator string
	Target    Target
}

// ModReportsPage is one page of the moderator-report queue.
type ModReportsPage struct {
	Targets []Target
	After   string
}

// SubredditInfo is the metadata cached for audit rows and the dashboard.
type SubredditInfo struct {
	Fullname    Fullname
	DisplayName string
	Subscribers int64
}

// BanRequest describes one addition to the subreddit ban list.
type BanRequest struct {
	User    string
	Message string
	Reason  string
	// Days of zero means permanent.
	Days int
}
