package github

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"taskboard/apperr"
)

// OAuth runs the GitHub authorization code flow.
type OAuth struct {
	config *oauth2.Config
}

func NewOAuth(clientID, clientSecret, redirectURL string) *OAuth {
	return &OAuth{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"repo", "read:user", "user:email"},
		Endpoint:     githuboauth.Endpoint,
	}}
}

// WithEndpoint replaces the authorization server endpoints.
func (o *OAuth) WithEndpoint(ep oauth2.Endpoint) *OAuth {
	cfg := *o.config
	cfg.Endpoint = ep
	return &OAuth{config: &cfg}
}

func (o *OAuth) Configured() bool {
	return o.config.ClientID != "" && o.config.ClientSecret != ""
}

func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", apperr.BadRequest("authorization code is required")
	}
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return "", apperr.Upstream(ReasonUnauthorized, "failed to exchange github authorization code", err)
	}
	return tok.AccessToken, nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
