package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Subreddit is a per-community handle over the client. One exists per
// configured subreddit for the life of the process.
type Subreddit struct {
	client *Client
	name   string
}

func (s *Subreddit) Name() string    { return s.name }
func (s *Subreddit) BaseURL() string { return s.client.BaseURL() }

// ModReports fetches one page of the moderator-report queue.
func (s *Subreddit) ModReports(ctx context.Context, after string) (*ModReportsPage, error) {
	q := url.Values{"limit": {"100"}}
	if after != "" {
		q.Set("after", after)
	}
	var l listing
	if err := s.client.get(ctx, fmt.Sprintf("/r/%s/about/reports", s.name), q, &l); err != nil {
		return nil, fmt.Errorf("fetching mod reports: %w", err)
	}
	page := &ModReportsPage{After: l.Data.After}
	for _, child := range l.Data.Children {
		target, err := parseTarget(child)
		if err != nil {
			s.client.logger.Warn("skipping unparseable report target", "subreddit", s.name, "err", err)
			continue
		}
		page.Targets = append(page.Targets, target)
	}
	return page, nil
}

// Ban adds a user to the subreddit ban list.
func (s *Subreddit) Ban(ctx context.Context, req BanRequest) error {
	form := url.Values{
		"api_type":    {"json"},
		"name":        {req.User},
		"type":        {"banned"},
		"ban_message": {req.Message},
		"ban_reason":  {req.Reason},
	}
	if req.Days > 0 {
		form.Set("duration", strconv.Itoa(req.Days))
	}
	var env jsonEnvelope
	if err := s.client.post(ctx, fmt.Sprintf("/r/%s/api/friend", s.name), form, &env); err != nil {
		return fmt.Errorf("banning %s: %w", req.User, err)
	}
	return env.err()
}

// Reply posts a comment underneath the given thing and returns the new
// comment's fullname. Returns ErrArchived when the parent is too old.
func (s *Subreddit) Reply(ctx context.Context, parent Fullname, text string) (Fullname, error) {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {string(parent)},
		"text":     {text},
	}
	var env jsonEnvelope
	if err := s.client.post(ctx, "/api/comment", form, &env); err != nil {
		return "", fmt.Errorf("replying to %s: %w", parent, err)
	}
	if err := env.err(); err != nil {
		return "", err
	}
	var data struct {
		Things []struct {
			Data struct {
				Name string `json:"name"`
			} `json:"data"`
		} `json:"things"`
	}
	if err := json.Unmarshal(env.JSON.Data, &data); err != nil || len(data.Things) == 0 {
		return "", fmt.Errorf("no comment returned replying to %s", parent)
	}
	return Fullname(data.Things[0].Data.Name), nil
}

// Distinguish marks a comment as an official moderator reply.
func (s *Subreddit) Distinguish(ctx context.Context, comment Fullname, sticky bool) error {
	form := url.Values{
		"api_type": {"json"},
		"id":       {string(comment)},
		"how":      {"yes"},
		"sticky":   {strconv.FormatBool(sticky)},
	}
	var env jsonEnvelope
	if err := s.client.post(ctx, "/api/distinguish", form, &env); err != nil {
		return fmt.Errorf("distinguishing %s: %w", comment, err)
	}
	return env.err()
}

func (s *Subreddit) Lock(ctx context.Context, target Fullname) error {
	if err := s.client.post(ctx, "/api/lock", url.Values{"id": {string(target)}}, nil); err != nil {
		return fmt.Errorf("locking %s: %w", target, err)
	}
	return nil
}

func (s *Subreddit) Remove(ctx context.Context, target Fullname) error {
	form := url.Values{"id": {string(target)}, "spam": {"false"}}
	if err := s.client.post(ctx, "/api/remove", form, nil); err != nil {
		return fmt.Errorf("removing %s: %w", target, err)
	}
	return nil
}

func (s *Subreddit) Approve(ctx context.Context, target Fullname) error {
	if err := s.client.post(ctx, "/api/approve", url.Values{"id": {string(target)}}, nil); err != nil {
		return fmt.Errorf("approving %s: %w", target, err)
	}
	return nil
}

// SendModmail opens a modmail conversation with the recipient, with the
// sending moderator's identity hidden.
func (s *Subreddit) SendModmail(ctx context.Context, subject, body, recipient string) error {
	form := url.Values{
		"srName":         {s.name},
		"subject":        {subject},
		"body":           {body},
		"to":             {recipient},
		"isAuthorHidden": {"true"},
	}
	if err := s.client.post(ctx, "/api/mod/conversations", form, nil); err != nil {
		return fmt.Errorf("sending modmail to %s: %w", recipient, err)
	}
	return nil
}

// CommentTree refreshes the given comment and returns its reply tree,
// fully expanded and flattened. The target itself is not included.
func (s *Subreddit) CommentTree(ctx context.Context, comment *Comment) ([]*Comment, error) {
	path := fmt.Sprintf("/r/%s/comments/%s/_/%s", s.name, comment.PostID, comment.ID)
	q := url.Values{"limit": {"500"}, "depth": {"100"}}
	var listings []listing
	if err := s.client.get(ctx, path, q, &listings); err != nil {
		return nil, fmt.Errorf("fetching comment tree for %s: %w", comment.Fullname(), err)
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("unexpected comment tree shape for %s", comment.Fullname())
	}

	var flat []*Comment
	var moreIDs []string
	for _, child := range listings[1].Data.Children {
		s.walkCommentTree(child, comment.ID, &flat, &moreIDs)
	}

	// expand collapsed "more" stubs until the tree is complete
	linkID := string(NewFullname(KindPost, comment.PostID))
	for len(moreIDs) > 0 {
		batch := moreIDs
		if len(batch) > 100 {
			batch = batch[:100]
		}
		moreIDs = moreIDs[len(batch):]
		more, err := s.moreChildren(ctx, linkID, batch)
		if err != nil {
			return nil, err
		}
		for _, child := range more {
			s.walkCommentTree(child, comment.ID, &flat, &moreIDs)
		}
	}
	return flat, nil
}

// walkCommentTree flattens a comment subtree, skipping the root target and
// collecting ids of unexpanded "more" stubs.
func (s *Subreddit) walkCommentTree(t thing, rootID string, flat *[]*Comment, moreIDs *[]string) {
	if t.Kind == "more" {
		var d struct {
			Children []string `json:"children"`
		}
		if err := json.Unmarshal(t.Data, &d); err == nil {
			*moreIDs = append(*moreIDs, d.Children...)
		}
		return
	}
	if t.Kind != "t1" {
		return
	}
	var d commentData
	if err := json.Unmarshal(t.Data, &d); err != nil {
		s.client.logger.Warn("skipping unparseable tree comment", "subreddit", s.name, "err", err)
		return
	}
	if d.ID != rootID {
		*flat = append(*flat, &Comment{
			ID:            d.ID,
			Author:        author(d.Author),
			BodyText:      d.Body,
			PostID:        strings.TrimPrefix(d.LinkID, "t3_"),
			Permalink:     d.Permalink,
			Distinguished: d.Distinguished,
		})
	}
	if len(d.Replies) > 0 && d.Replies[0] == '{' {
		var replies listing
		if err := json.Unmarshal(d.Replies, &replies); err != nil {
			return
		}
		for _, child := range replies.Data.Children {
			s.walkCommentTree(child, rootID, flat, moreIDs)
		}
	}
}

func (s *Subreddit) moreChildren(ctx context.Context, linkID string, ids []string) ([]thing, error) {
	q := url.Values{
		"api_type": {"json"},
		"link_id":  {linkID},
		"children": {strings.Join(ids, ",")},
	}
	var env jsonEnvelope
	if err := s.client.get(ctx, "/api/morechildren", q, &env); err != nil {
		return nil, fmt.Errorf("expanding comment tree: %w", err)
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	var data struct {
		Things []thing `json:"things"`
	}
	if err := json.Unmarshal(env.JSON.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding morechildren: %w", err)
	}
	return data.Things, nil
}

// WikiPage fetches a wiki page's markdown content and current revision id.
func (s *Subreddit) WikiPage(ctx context.Context, page string) (string, string, error) {
	var resp struct {
		Data struct {
			ContentMD  string `json:"content_md"`
			RevisionID string `json:"revision_id"`
		} `json:"data"`
	}
	if err := s.client.get(ctx, fmt.Sprintf("/r/%s/wiki/%s", s.name, page), nil, &resp); err != nil {
		return "", "", fmt.Errorf("fetching wiki page %s: %w", page, err)
	}
	return resp.Data.ContentMD, resp.Data.RevisionID, nil
}

// SaveWikiPage writes a wiki page conditioned on baseRevision being the
// current revision; a *WikiConflictError carries the fresh state otherwise.
func (s *Subreddit) SaveWikiPage(ctx context.Context, page, content, baseRevision, reason string) error {
	form := url.Values{
		"page":     {page},
		"content":  {content},
		"previous": {baseRevision},
		"reason":   {reason},
	}
	if err := s.client.post(ctx, fmt.Sprintf("/r/%s/api/wiki/edit", s.name), form, nil); err != nil {
		var conflict *WikiConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		return fmt.Errorf("saving wiki page %s: %w", page, err)
	}
	return nil
}

// About fetches subreddit metadata for the audit tables.
func (s *Subreddit) About(ctx context.Context) (*SubredditInfo, error) {
	var resp struct {
		Data struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
			Subscribers int64  `json:"subscribers"`
		} `json:"data"`
	}
	if err := s.client.get(ctx, fmt.Sprintf("/r/%s/about", s.name), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching subreddit info: %w", err)
	}
	return &SubredditInfo{
		Fullname:    Fullname(resp.Data.Name),
		DisplayName: resp.Data.DisplayName,
		Subscribers: resp.Data.Subscribers,
	}, nil
}

// Moderators lists the subreddit's moderator usernames.
func (s *Subreddit) Moderators(ctx context.Context) ([]string, error) {
	var resp struct {
		Data struct {
			Children []struct {
				Name string `json:"name"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := s.client.get(ctx, fmt.Sprintf("/r/%s/about/moderators", s.name), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching moderators: %w", err)
	}
	names := make([]string, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		names = append(names, child.Name)
	}
	return names, nil
}
