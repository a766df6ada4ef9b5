package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"taskboard/apperr"
	"taskboard/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), "gh-token", append([]Option{WithBaseURL(srv.URL)}, opts...)...)
}

func TestClientSendsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/user", r.URL.Path)
		fmt.Fprint(w, `{"id":7,"login":"octo","avatar_url":"https://avatars/octo"}`)
	})

	p, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "octo", p.Login)
}

func TestIssuesFilterPullRequests(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/issues", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[
			{"number":1,"title":"Crash on login","body":"stack"},
			{"number":2,"title":"Add feature","pull_request":{"url":"x"}},
			{"number":3,"title":"Slow board","body":"login takes long"}
		]`)
	})

	issues, err := c.Issues(context.Background(), "acme", "app", ListOptions{State: "open"})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Number)

	issues, err = c.Issues(context.Background(), "acme", "app", ListOptions{State: "open", Search: "LOGIN"})
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

func TestBranchesSetHTMLURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"main","commit":{"sha":"abc"}},{"name":"feature/x","commit":{"sha":"def"}}]`)
	})

	branches, err := c.Branches(context.Background(), "acme", "app", ListOptions{Search: "feat"})
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "https://github.com/acme/app/tree/feature/x", branches[0].HTMLURL)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		reason string
	}{
		{"not found", http.StatusNotFound, nil, ReasonNotFound},
		{"unauthorized", http.StatusUnauthorized, nil, ReasonUnauthorized},
		{"rate limited 403", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1700000000"}, ReasonRateLimited},
		{"rate limited 429", http.StatusTooManyRequests, nil, ReasonRateLimited},
		{"plain forbidden", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "10"}, ReasonUnavailable},
		{"server error", http.StatusInternalServerError, nil, ReasonUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			})

			_, err := c.Repository(context.Background(), "acme", "app")
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindUpstream))
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestTimeoutFailsCleanly(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	start := time.Now()
	_, err := c.Commits(context.Background(), "acme", "app", ListOptions{})
	require.Error(t, err)
	assert.Equal(t, ReasonTimeout, ReasonOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAttachmentMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/issues/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":42,"title":"Fix it","state":"open","html_url":"https://github.com/acme/app/issues/42","user":{"login":"octo"}}`)
	})
	mux.HandleFunc("/repos/acme/app/commits/abc123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"abc123","html_url":"https://github.com/acme/app/commit/abc123","commit":{"message":"First line\n\nbody","author":{"name":"Dev"}},"author":null}`)
	})
	c := newTestClient(t, mux.ServeHTTP)
	repo := models.RepoRef{Owner: "acme", Name: "app", FullName: "acme/app"}
	ctx := context.Background()

	md, err := c.AttachmentMetadata(ctx, models.GitHubAttachment{Type: models.AttachmentIssue, Repository: repo, GitHubID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "Fix it", md.Title)
	assert.Equal(t, "open", md.State)
	assert.Equal(t, "octo", md.Author)

	md, err = c.AttachmentMetadata(ctx, models.GitHubAttachment{Type: models.AttachmentCommit, Repository: repo, GitHubID: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "First line", md.Title)
	assert.Equal(t, "Dev", md.Author)

	_, err = c.AttachmentMetadata(ctx, models.GitHubAttachment{Type: models.AttachmentPullRequest, Repository: repo, GitHubID: "abc"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = c.AttachmentMetadata(ctx, models.GitHubAttachment{Type: "gist", Repository: repo, GitHubID: "1"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	fb := FallbackMetadata(models.GitHubAttachment{Type: models.AttachmentBranch, Repository: repo, GitHubID: "main"})
	assert.Equal(t, "main", fb.Title)
	assert.Equal(t, "https://github.com/acme/app", fb.URL)
}

func TestOAuthExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"bad_verification_code"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"gho_123","token_type":"bearer"}`)
	}))
	defer srv.Close()

	o := NewOAuth("id", "secret", "http://localhost/callback").WithEndpoint(oauth2.Endpoint{
		AuthURL:  srv.URL + "/authorize",
		TokenURL: srv.URL + "/token",
	})
	assert.True(t, o.Configured())
	assert.Contains(t, o.AuthCodeURL("xyz"), "state=xyz")

	token, err := o.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "gho_123", token)

	_, err = o.Exchange(context.Background(), "bad")
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	_, err = o.Exchange(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}
