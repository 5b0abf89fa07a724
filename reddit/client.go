package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// ClientConfig holds the static client parameters. Credential acquisition
// is out of scope; a pre-issued OAuth bearer token is passed in directly.
type ClientConfig struct {
	// APIHost is the OAuth API origin, eg "https://oauth.reddit.com".
	APIHost string
	// SiteHost is the public site origin used when composing user-facing
	// links, eg "https://www.reddit.com".
	SiteHost  string
	Token     string
	UserAgent string
	// RequestsPerMinute caps outbound call rate. Zero means 60.
	RequestsPerMinute int
	Logger            *slog.Logger
}

// Client is a thin wrapper over the subset of the reddit API this bot
// consumes. It owns transport concerns (retries, rate limiting); call
// ordering and batching live in the engine.
type Client struct {
	apiHost   string
	siteHost  string
	token     string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

type leveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l leveledSlog) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Info(msg string, keysAndValues ...any)  { l.inner.Info(msg, keysAndValues...) }
func (l leveledSlog) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger.With("subsystem", "RedditHTTPClient")})
	hc := retryClient.StandardClient()
	hc.Timeout = 30 * time.Second

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	apiHost := cfg.APIHost
	if apiHost == "" {
		apiHost = "https://oauth.reddit.com"
	}
	siteHost := cfg.SiteHost
	if siteHost == "" {
		siteHost = "https://www.reddit.com"
	}

	return &Client{
		apiHost:   strings.TrimSuffix(apiHost, "/"),
		siteHost:  strings.TrimSuffix(siteHost, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      hc,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 5),
		logger:    logger,
	}
}

// BaseURL is the public site origin, for user-facing links.
func (c *Client) BaseURL() string { return c.siteHost }

// Subreddit returns a handle scoped to one subreddit.
func (c *Client) Subreddit(name string) *Subreddit {
	return &Subreddit{client: c, name: name}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.apiHost + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		return parseWikiConflict(raw)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, form, out)
}

// jsonEnvelope is the response shape of api_type=json endpoints.
type jsonEnvelope struct {
	JSON struct {
		Errors [][]string      `json:"errors"`
		Data   json.RawMessage `json:"data"`
	} `json:"json"`
}

func (e *jsonEnvelope) err() error {
	for _, entry := range e.JSON.Errors {
		if len(entry) == 0 {
			continue
		}
		code := entry[0]
		if code == "TOO_OLD" {
			return ErrArchived
		}
		msg := ""
		if len(entry) > 1 {
			msg = entry[1]
		}
		return &APIError{StatusCode: http.StatusOK, Code: code, Message: msg}
	}
	return nil
}

func parseWikiConflict(raw []byte) error {
	var body struct {
		NewContent  string `json:"newcontent"`
		NewRevision string `json:"newrevision"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.NewRevision == "" {
		return &APIError{StatusCode: http.StatusConflict}
	}
	return &WikiConflictError{Content: body.NewContent, RevisionID: body.NewRevision}
}

// thing is reddit's tagged-union wire format.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

type postData struct {
	ID         string     `json:"id"`
	Author     string     `json:"author"`
	Title      string     `json:"title"`
	SelfText   string     `json:"selftext"`
	URL        string     `json:"url"`
	Domain     string     `json:"domain"`
	Permalink  string     `json:"permalink"`
	Locked     bool       `json:"locked"`
	ModReports [][]string `json:"mod_reports"`
}

type commentData struct {
	ID            string          `json:"id"`
	Author        string          `json:"author"`
	Body          string          `json:"body"`
	LinkID        string          `json:"link_id"`
	Permalink     string          `json:"permalink"`
	Distinguished string          `json:"distinguished"`
	ModReports    [][]string      `json:"mod_reports"`
	Replies       json.RawMessage `json:"replies"`
}

func modReports(raw [][]string) []ModReport {
	var out []ModReport
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		out = append(out, ModReport{Text: pair[0], Moderator: pair[1]})
	}
	return out
}

// deletedAuthor is how the API renders an author whose account is gone.
const deletedAuthor = "[deleted]"

func author(name string) string {
	if name == deletedAuthor {
		return ""
	}
	return name
}

func parseTarget(t thing) (Target, error) {
	switch t.Kind {
	case "t3":
		var d postData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decoding post: %w", err)
		}
		return &Post{
			ID:         d.ID,
			Author:     author(d.Author),
			Title:      d.Title,
			SelfText:   d.SelfText,
			URL:        d.URL,
			Domain:     d.Domain,
			Permalink:  d.Permalink,
			Locked:     d.Locked,
			ModReports: modReports(d.ModReports),
		}, nil
	case "t1":
		var d commentData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decoding comment: %w", err)
		}
		postID := strings.TrimPrefix(d.LinkID, "t3_")
		return &Comment{
			ID:            d.ID,
			Author:        author(d.Author),
			BodyText:      d.Body,
			PostID:        postID,
			Permalink:     d.Permalink,
			Distinguished: d.Distinguished,
			ModReports:    modReports(d.ModReports),
		}, nil
	default:
		return nil, fmt.Errorf("unexpected thing kind: %q", t.Kind)
	}
}
