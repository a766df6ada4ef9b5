package controller

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskboard/apperr"
	"taskboard/auth"
	"taskboard/github"
	"taskboard/repository"
	"taskboard/utils"
)

const (
	accessTokenCookie = "access_token"
	oauthStateCookie  = "oauth_state"
)

type AuthController struct {
	codes         *auth.CodeService
	tokens        *auth.JWTManager
	repo          *repository.Repository
	accounts      *github.Accounts
	frontendURL   string
	secureCookies bool
	log           *logrus.Entry
}

func NewAuthController(
	codes *auth.CodeService,
	tokens *auth.JWTManager,
	repo *repository.Repository,
	accounts *github.Accounts,
	frontendURL string,
	secureCookies bool,
	log *logrus.Entry,
) *AuthController {
	return &AuthController{
		codes:         codes,
		tokens:        tokens,
		repo:          repo,
		accounts:      accounts,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		secureCookies: secureCookies,
		log:           log,
	}
}

func (ac *AuthController) setTokenCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   ac.secureCookies,
		SameSite: "Lax",
	})
}

// SendVerificationCode mails a sign-in code to the given address.
func (ac *AuthController) SendVerificationCode(c *fiber.Ctx) error {
	var input struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}
	if err := ac.codes.SendCode(c.UserContext(), input.Email); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("Verification code sent"))
}

// VerifyCode signs the user in, creating the account on first login.
func (ac *AuthController) VerifyCode(c *fiber.Ctx) error {
	var input struct {
		Email            string `json:"email" validate:"required,email"`
		VerificationCode string `json:"verificationCode" validate:"required,len=6"`
		Name             string `json:"name" validate:"max=100"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}

	result, err := ac.codes.VerifyCode(c.UserContext(), input.Email, input.VerificationCode, input.Name)
	if err != nil {
		return err
	}
	ac.setTokenCookie(c, result.Token, result.ExpiresAt)
	return c.JSON(utils.SuccessResponse(result))
}

func (ac *AuthController) Profile(c *fiber.Ctx) error {
	user, err := ac.repo.GetUser(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(user.Public()))
}

func (ac *AuthController) UpdateProfile(c *fiber.Ctx) error {
	var input struct {
		Name      *string `json:"name" validate:"omitempty,max=100"`
		AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
	}
	if err := parseBody(c, &input); err != nil {
		return err
	}

	fields := map[string]any{}
	if input.Name != nil {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.AvatarURL != nil {
		fields["avatarUrl"] = *input.AvatarURL
	}
	if len(fields) > 0 {
		if err := ac.repo.UpdateUser(c.UserContext(), currentUser(c), fields); err != nil {
			return err
		}
	}
	return ac.Profile(c)
}

// RefreshToken issues a new token for a still-valid session.
func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	user, err := ac.repo.GetUser(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	token, expiresAt, err := ac.tokens.Issue(*user)
	if err != nil {
		return apperr.Internal("failed to issue token", err)
	}
	ac.setTokenCookie(c, token, expiresAt)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"token":     token,
		"expiresAt": expiresAt,
	}))
}

func (ac *AuthController) Logout(c *fiber.Ctx) error {
	c.ClearCookie(accessTokenCookie)
	return c.JSON(utils.MessageResponse("Logged out"))
}

// GitHubOAuth redirects to GitHub to link the caller's account.
func (ac *AuthController) GitHubOAuth(c *fiber.Ctx) error {
	if !ac.accounts.OAuth().Configured() {
		return apperr.BadRequest("GitHub integration is not configured")
	}

	// Generate OAuth state token with CSRF protection
	state, err := github.NewState()
	if err != nil {
		return apperr.Internal("failed to generate state token", err)
	}

	cookie := new(fiber.Cookie)
	cookie.Name = oauthStateCookie
	cookie.Value = state
	cookie.Expires = time.Now().Add(10 * time.Minute)
	cookie.HTTPOnly = true
	cookie.Secure = ac.secureCookies
	cookie.SameSite = "Lax"
	c.Cookie(cookie)

	return c.Redirect(ac.accounts.OAuth().AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

// GitHubOAuthCallback finishes linking and sends the browser back to the
// frontend with the outcome in the query string.
func (ac *AuthController) GitHubOAuthCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	cookieState := c.Cookies(oauthStateCookie)
	if state == "" || cookieState == "" || state != cookieState {
		return apperr.BadRequest("invalid state parameter")
	}
	c.ClearCookie(oauthStateCookie)

	account, err := ac.accounts.Link(c.UserContext(), currentUser(c), c.Query("code"))
	if err != nil {
		ac.log.WithError(err).WithField("user_id", currentUser(c)).Warn("github link failed")
		return c.Redirect(ac.frontendURL+"/settings?github=error&reason="+url.QueryEscape(string(apperr.KindOf(err))), fiber.StatusTemporaryRedirect)
	}
	return c.Redirect(ac.frontendURL+"/settings?github=connected&login="+url.QueryEscape(account.Login), fiber.StatusTemporaryRedirect)
}
