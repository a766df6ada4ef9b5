package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"taskboard/apperr"
	"taskboard/models"
	"taskboard/repository"
	"taskboard/store"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestAccountsLinkAndUse(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"gho_secret","token_type":"bearer"}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":99,"login":"octo","avatar_url":"https://avatars/octo"}`)
	})
	mux.HandleFunc("/repos/acme/app/pulls/5", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":5,"title":"Add board","state":"open","user":{"login":"octo"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := repository.New(store.NewMemoryStore())
	require.NoError(t, repo.CreateUser(ctx, &models.User{ID: "u1", Email: "u1@example.com"}))
	oauth := NewOAuth("id", "secret", "http://localhost/cb").WithEndpoint(oauth2.Endpoint{TokenURL: srv.URL + "/token"})
	accounts := NewAccounts(repo, oauth, testKey, logrus.NewEntry(logrus.New()), WithBaseURL(srv.URL))

	status, err := accounts.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Connected)

	_, err = accounts.ClientFor(ctx, "u1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	account, err := accounts.Link(ctx, "u1", "code")
	require.NoError(t, err)
	assert.Equal(t, "octo", account.Login)
	assert.NotEqual(t, "gho_secret", account.AccessToken)

	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.GitHub)
	assert.Equal(t, int64(99), u.GitHub.ID)
	assert.True(t, u.Public().GitHubLinked)

	md, err := accounts.AttachmentMetadata(ctx, "u1", models.GitHubAttachment{
		Type:       models.AttachmentPullRequest,
		Repository: models.RepoRef{Owner: "acme", Name: "app", FullName: "acme/app"},
		GitHubID:   "5",
	})
	require.NoError(t, err)
	assert.Equal(t, "Add board", md.Title)

	require.NoError(t, accounts.Disconnect(ctx, "u1"))
	status, err = accounts.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Connected)
}
