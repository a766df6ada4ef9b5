package models

import "time"

const (
	CollectionUsers             = "users"
	CollectionVerificationCodes = "verification_codes"
)

// User represents an account. Users are created on first successful email
// verification.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name,omitempty"`
	AvatarURL     string         `json:"avatarUrl,omitempty"`
	EmailVerified bool           `json:"emailVerified"`
	GitHub        *GitHubAccount `json:"github,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// DisplayName returns the name when set, otherwise the email.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// GitHubAccount is the linked GitHub identity. AccessToken is stored
// encrypted and never serialised to clients.
type GitHubAccount struct {
	ID          int64     `json:"id"`
	Login       string    `json:"login"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	AccessToken string    `json:"accessToken"`
	LinkedAt    time.Time `json:"linkedAt"`
}

// PublicUser is the client-facing view of a User.
type PublicUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	GitHubLogin   string `json:"githubLogin,omitempty"`
	GitHubLinked  bool   `json:"githubLinked"`
	EmailVerified bool   `json:"emailVerified"`
}

func (u User) Public() PublicUser {
	p := PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		AvatarURL:     u.AvatarURL,
		EmailVerified: u.EmailVerified,
	}
	if u.GitHub != nil {
		p.GitHubLinked = true
		p.GitHubLogin = u.GitHub.Login
	}
	return p
}

// VerificationCode is a pending email login code, keyed by normalised email.
type VerificationCode struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"codeHash"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expiresAt"`
	SentAt    time.Time `json:"sentAt"`
}
