package engine

import (
	"context"
	"fmt"

	"github.com/leviroth/bernard/reddit"
)

// MockSubreddit is a scripted SubredditClient for tests. Remote calls are
// recorded; responses come from the scripted fields.
type MockSubreddit struct {
	SubName string

	// ReportScript entries are consumed one per ModReports call; an
	// exhausted script yields empty pages.
	ReportScript []ReportScriptEntry

	Bans          []reddit.BanRequest
	BanErr        error
	Replies       []MockReply
	ReplyErr      error
	Distinguishes map[reddit.Fullname]bool
	Locked        []reddit.Fullname
	Removed       []reddit.Fullname
	RemoveErr     error
	Approved      []reddit.Fullname
	Modmails      []MockModmail

	Tree    []*reddit.Comment
	TreeErr error

	WikiContent  map[string]string
	WikiRevision map[string]string
	WikiFetches  int
	WikiSaves    []MockWikiSave
	// WikiSaveScript entries are consumed one per SaveWikiPage call; nil
	// means the save is applied. An exhausted script applies saves.
	WikiSaveScript []error

	Info     *reddit.SubredditInfo
	ModNames []string

	replySeq int
}

type ReportScriptEntry struct {
	Page *reddit.ModReportsPage
	Err  error
}

type MockReply struct {
	Parent reddit.Fullname
	Text   string
	Name   reddit.Fullname
}

type MockModmail struct {
	Subject   string
	Body      string
	Recipient string
}

type MockWikiSave struct {
	Page         string
	Content      string
	BaseRevision string
	Reason       string
}

func NewMockSubreddit(name string) *MockSubreddit {
	return &MockSubreddit{
		SubName:       name,
		Distinguishes: make(map[reddit.Fullname]bool),
		WikiContent:   make(map[string]string),
		WikiRevision:  make(map[string]string),
		Info: &reddit.SubredditInfo{
			Fullname:    "t5_2qh3s",
			DisplayName: name,
			Subscribers: 100,
		},
	}
}

var _ SubredditClient = (*MockSubreddit)(nil)

func (m *MockSubreddit) Name() string    { return m.SubName }
func (m *MockSubreddit) BaseURL() string { return "https://www.reddit.com" }

func (m *MockSubreddit) ModReports(ctx context.Context, after string) (*reddit.ModReportsPage, error) {
	if len(m.ReportScript) == 0 {
		return &reddit.ModReportsPage{}, nil
	}
	entry := m.ReportScript[0]
	m.ReportScript = m.ReportScript[1:]
	return entry.Page, entry.Err
}

func (m *MockSubreddit) Ban(ctx context.Context, req reddit.BanRequest) error {
	if m.BanErr != nil {
		return m.BanErr
	}
	m.Bans = append(m.Bans, req)
	return nil
}

func (m *MockSubreddit) Reply(ctx context.Context, parent reddit.Fullname, text string) (reddit.Fullname, error) {
	if m.ReplyErr != nil {
		return "", m.ReplyErr
	}
	m.replySeq++
	name := reddit.Fullname(fmt.Sprintf("t1_reply%d", m.replySeq))
	m.Replies = append(m.Replies, MockReply{Parent: parent, Text: text, Name: name})
	return name, nil
}

func (m *MockSubreddit) Distinguish(ctx context.Context, comment reddit.Fullname, sticky bool) error {
	m.Distinguishes[comment] = sticky
	return nil
}

func (m *MockSubreddit) Lock(ctx context.Context, target reddit.Fullname) error {
	m.Locked = append(m.Locked, target)
	return nil
}

func (m *MockSubreddit) Remove(ctx context.Context, target reddit.Fullname) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.Removed = append(m.Removed, target)
	return nil
}

func (m *MockSubreddit) Approve(ctx context.Context, target reddit.Fullname) error {
	m.Approved = append(m.Approved, target)
	return nil
}

func (m *MockSubreddit) SendModmail(ctx context.Context, subject, body, recipient string) error {
	m.Modmails = append(m.Modmails, MockModmail{Subject: subject, Body: body, Recipient: recipient})
	return nil
}

func (m *MockSubreddit) CommentTree(ctx context.Context, comment *reddit.Comment) ([]*reddit.Comment, error) {
	if m.TreeErr != nil {
		return nil, m.TreeErr
	}
	return m.Tree, nil
}

func (m *MockSubreddit) WikiPage(ctx context.Context, page string) (string, string, error) {
	m.WikiFetches++
	content, ok := m.WikiContent[page]
	if !ok {
		return "", "", fmt.Errorf("no such wiki page: %s", page)
	}
	return content, m.WikiRevision[page], nil
}

func (m *MockSubreddit) SaveWikiPage(ctx context.Context, page, content, baseRevision, reason string) error {
	m.WikiSaves = append(m.WikiSaves, MockWikiSave{Page: page, Content: content, BaseRevision: baseRevision, Reason: reason})
	if len(m.WikiSaveScript) > 0 {
		err := m.WikiSaveScript[0]
		m.WikiSaveScript = m.WikiSaveScript[1:]
		if err != nil {
			return err
		}
	}
	m.WikiContent[page] = content
	m.WikiRevision[page] = fmt.Sprintf("rev-%d", len(m.WikiSaves))
	return nil
}

func (m *MockSubreddit) About(ctx context.Context) (*reddit.SubredditInfo, error) {
	return m.Info, nil
}

func (m *MockSubreddit) Moderators(ctx context.Context) ([]string, error) {
	return m.ModNames, nil
}
