// Package github reads repository data from the GitHub REST API on behalf of
// a user. Nothing fetched here is persisted.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"taskboard/apperr"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 10 * time.Second
)

// Reasons carried by upstream errors from this package.
const (
	ReasonNotFound     = "github_not_found"
	ReasonUnauthorized = "github_unauthorized"
	ReasonRateLimited  = "github_rate_limited"
	ReasonTimeout      = "github_timeout"
	ReasonUnavailable  = "github_unavailable"
)

// Client is bound to one user's access token. Requests are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at another API root, such as a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func NewClient(ctx context.Context, accessToken string, opts ...Option) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = DefaultTimeout

	c := &Client{baseURL: DefaultBaseURL, httpClient: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListOptions pages and filters list endpoints. Zero values use GitHub's
// defaults.
type ListOptions struct {
	Page    int
	PerPage int
	State   string
	Search  string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.State != "" {
		v.Set("state", o.State)
	}
	return v
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperr.Internal("building github request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return apperr.Upstream(ReasonTimeout, "github request timed out", err)
		}
		return apperr.Upstream(ReasonUnavailable, "github request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return apperr.Upstream(ReasonTimeout, "github request timed out", err)
		}
		return apperr.Upstream(ReasonUnavailable, "invalid github response", err)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	cause := fmt.Errorf("github responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Upstream(ReasonNotFound, "github resource not found", cause)
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Upstream(ReasonUnauthorized, "github token rejected, reconnect your github account", cause)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		msg := "github rate limit exceeded"
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			msg = fmt.Sprintf("github rate limit exceeded, resets at %s", time.Unix(reset, 0).UTC().Format(time.RFC3339))
		}
		return apperr.Upstream(ReasonRateLimited, msg, cause)
	default:
		return apperr.Upstream(ReasonUnavailable, "github request failed", cause)
	}
}

// ReasonOf returns the github reason of err, or "" if err did not come from
// this package.
func ReasonOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind == apperr.KindUpstream {
		return e.Reason
	}
	return ""
}

func repoPath(owner, repo string, parts ...string) string {
	p := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// Profile returns the authenticated GitHub user.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/user", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Repositories(ctx context.Context, opts ListOptions) ([]Repository, error) {
	q := opts.values()
	q.Set("type", "all")
	q.Set("sort", "updated")
	if opts.PerPage == 0 {
		q.Set("per_page", "100")
	}
	var repos []Repository
	if err := c.get(ctx, "/user/repos", q, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Client) SearchRepositories(ctx context.Context, query string, opts ListOptions) (*RepositorySearch, error) {
	q := opts.values()
	q.Set("q", query)
	q.Set("sort", "updated")
	q.Set("order", "desc")
	var res RepositorySearch
	if err := c.get(ctx, "/search/repositories", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Repository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.get(ctx, repoPath(owner, repo), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Branches(ctx context.Context, owner, repo string, opts ListOptions) ([]Branch, error) {
	var branches []Branch
	if err := c.get(ctx, repoPath(owner, repo, "branches"), opts.values(), &branches); err != nil {
		return nil, err
	}
	for i := range branches {
		branches[i].HTMLURL = fmt.Sprintf("https://github.com/%s/%s/tree/%s", owner, repo, branches[i].Name)
	}
	if opts.Search != "" {
		branches = filter(branches, func(b Branch) bool { return containsFold(b.Name, opts.Search) })
	}
	return branches, nil
}

func (c *Client) Branch(ctx context.Context, owner, repo, name string) (*Branch, error) {
	var b Branch
	if err := c.get(ctx, repoPath(owner, repo, "branches", name), nil, &b); err != nil {
		return nil, err
	}
	b.HTMLURL = fmt.Sprintf("https://github.com/%s/%s/tree/%s", owner, repo, b.Name)
	return &b, nil
}

// Issues lists issues without the pull requests GitHub mixes into the same
// endpoint.
func (c *Client) Issues(ctx context.Context, owner, repo string, opts ListOptions) ([]Issue, error) {
	var items []Issue
	if err := c.get(ctx, repoPath(owner, repo, "issues"), opts.values(), &items); err != nil {
		return nil, err
	}
	return filter(items, func(i Issue) bool {
		if i.PullRequest != nil {
			return false
		}
		return opts.Search == "" || containsFold(i.Title, opts.Search) || containsFold(i.Body, opts.Search)
	}), nil
}

func (c *Client) Issue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	var i Issue
	if err := c.get(ctx, repoPath(owner, repo, "issues", strconv.Itoa(number)), nil, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

func (c *Client) PullRequests(ctx context.Context, owner, repo string, opts ListOptions) ([]PullRequest, error) {
	var pulls []PullRequest
	if err := c.get(ctx, repoPath(owner, repo, "pulls"), opts.values(), &pulls); err != nil {
		return nil, err
	}
	if opts.Search != "" {
		pulls = filter(pulls, func(p PullRequest) bool {
			return containsFold(p.Title, opts.Search) || containsFold(p.Body, opts.Search)
		})
	}
	return pulls, nil
}

func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var p PullRequest
	if err := c.get(ctx, repoPath(owner, repo, "pulls", strconv.Itoa(number)), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Commits(ctx context.Context, owner, repo string, opts ListOptions) ([]Commit, error) {
	var commits []Commit
	if err := c.get(ctx, repoPath(owner, repo, "commits"), opts.values(), &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *Client) Commit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	var commit Commit
	if err := c.get(ctx, repoPath(owner, repo, "commits", sha), nil, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
