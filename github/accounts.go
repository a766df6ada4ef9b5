package github

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/models"
	"taskboard/repository"
	"taskboard/utils"
)

const ReasonNotConnected = "github_not_connected"

// Accounts links GitHub identities to users and builds API clients from the
// stored, encrypted access tokens.
type Accounts struct {
	repo          *repository.Repository
	oauth         *OAuth
	encryptionKey string
	clientOpts    []Option
	log           *logrus.Entry
}

func NewAccounts(repo *repository.Repository, oauth *OAuth, encryptionKey string, log *logrus.Entry, opts ...Option) *Accounts {
	return &Accounts{
		repo:          repo,
		oauth:         oauth,
		encryptionKey: encryptionKey,
		clientOpts:    opts,
		log:           log,
	}
}

func (a *Accounts) OAuth() *OAuth { return a.oauth }

// Link completes the OAuth flow for userID and stores the GitHub account.
func (a *Accounts) Link(ctx context.Context, userID, code string) (*models.GitHubAccount, error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := NewClient(ctx, token, a.clientOpts...).Profile(ctx)
	if err != nil {
		return nil, err
	}
	sealed, err := utils.Encrypt(a.encryptionKey, token)
	if err != nil {
		return nil, apperr.Internal("failed to encrypt github token", err)
	}

	account := &models.GitHubAccount{
		ID:          profile.ID,
		Login:       profile.Login,
		AvatarURL:   profile.AvatarURL,
		AccessToken: sealed,
		LinkedAt:    a.repo.Now(),
	}
	if err := a.repo.UpdateUser(ctx, userID, map[string]any{"github": account}); err != nil {
		return nil, err
	}

	a.log.WithFields(logrus.Fields{
		"user_id": userID,
		"login":   profile.Login,
	}).Info("github account linked")
	return account, nil
}

// Status describes a user's GitHub connection.
type Status struct {
	Connected bool       `json:"connected"`
	Login     string     `json:"login,omitempty"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	LinkedAt  *time.Time `json:"linkedAt,omitempty"`
}

func (a *Accounts) Status(ctx context.Context, userID string) (Status, error) {
	u, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if u.GitHub == nil || u.GitHub.AccessToken == "" {
		return Status{}, nil
	}
	linked := u.GitHub.LinkedAt
	return Status{Connected: true, Login: u.GitHub.Login, AvatarURL: u.GitHub.AvatarURL, LinkedAt: &linked}, nil
}

func (a *Accounts) Disconnect(ctx context.Context, userID string) error {
	return a.repo.UpdateUser(ctx, userID, map[string]any{"github": nil})
}

// ClientFor returns a client authenticated as userID.
func (a *Accounts) ClientFor(ctx context.Context, userID string) (*Client, error) {
	u, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.GitHub == nil || u.GitHub.AccessToken == "" {
		return nil, apperr.BadRequest("please connect your github account first").WithReason(ReasonNotConnected)
	}
	token, err := utils.Decrypt(a.encryptionKey, u.GitHub.AccessToken)
	if err != nil {
		return nil, apperr.Internal("failed to decrypt github token", err)
	}
	return NewClient(ctx, token, a.clientOpts...), nil
}

// AttachmentMetadata fetches attachment metadata with userID's token.
func (a *Accounts) AttachmentMetadata(ctx context.Context, userID string, att models.GitHubAttachment) (*Metadata, error) {
	c, err := a.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.AttachmentMetadata(ctx, att)
}
