package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"taskboard/apperr"
	"taskboard/models"
	"taskboard/repository"
)

const (
	CodeLength      = 6
	MaxCodeAttempts = 5
	ResendCooldown  = time.Minute
)

// CodeMailer delivers a login code.
type CodeMailer interface {
	SendVerificationCode(to, code string, ttl time.Duration) error
}

// SignupHook runs after a new account is created. Its failure never fails
// the login.
type SignupHook func(ctx context.Context, user *models.User) error

type CodeService struct {
	repo   *repository.Repository
	mailer CodeMailer
	tokens *JWTManager
	ttl    time.Duration
	hooks  []SignupHook
	log    *logrus.Entry
}

func NewCodeService(repo *repository.Repository, mailer CodeMailer, tokens *JWTManager, ttl time.Duration, log *logrus.Entry) *CodeService {
	return &CodeService{
		repo:   repo,
		mailer: mailer,
		tokens: tokens,
		ttl:    ttl,
		log:    log,
	}
}

// OnSignup registers a hook that runs after first login creates a user.
func (s *CodeService) OnSignup(hook SignupHook) {
	s.hooks = append(s.hooks, hook)
}

// GenerateCode returns a random numeric code of CodeLength digits.
func GenerateCode() (string, error) {
	const digits = "0123456789"
	code := make([]byte, CodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[num.Int64()]
	}
	return string(code), nil
}

// SendCode creates a fresh login code for email and mails it. Only a bcrypt
// hash of the code is stored.
func (s *CodeService) SendCode(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return apperr.BadRequest("invalid email address")
	}

	now := s.repo.Now()
	existing, err := s.repo.GetVerificationCode(ctx, email)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	if existing != nil && now.Sub(existing.SentAt) < ResendCooldown {
		return apperr.BadRequest("please wait before requesting another code")
	}

	code, err := GenerateCode()
	if err != nil {
		return apperr.Internal("failed to generate code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash code", err)
	}

	vc := &models.VerificationCode{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.ttl),
		SentAt:    now,
	}
	if err := s.repo.SaveVerificationCode(ctx, vc); err != nil {
		return err
	}

	if err := s.mailer.SendVerificationCode(email, code, s.ttl); err != nil {
		return apperr.Upstream("mail_failed", "failed to send verification code", err)
	}
	s.log.WithField("email", email).Info("verification code sent")
	return nil
}

type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.PublicUser `json:"user"`
	IsNew     bool              `json:"isNewUser"`
}

// VerifyCode checks code for email, creating the account on first login.
func (s *CodeService) VerifyCode(ctx context.Context, email, code, name string) (*LoginResult, error) {
	email = repository.NormalizeEmail(email)
	vc, err := s.repo.GetVerificationCode(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.BadRequest("no verification code requested for this email")
	}
	if err != nil {
		return nil, err
	}

	if s.repo.Now().After(vc.ExpiresAt) {
		_ = s.repo.DeleteVerificationCode(ctx, email)
		return nil, apperr.BadRequest("verification code expired")
	}
	if vc.Attempts >= MaxCodeAttempts {
		return nil, apperr.BadRequest("too many attempts, request a new code")
	}
	if bcrypt.CompareHashAndPassword([]byte(vc.CodeHash), []byte(code)) != nil {
		if err := s.repo.SetVerificationAttempts(ctx, email, vc.Attempts+1); err != nil {
			s.log.WithError(err).Warn("failed to record verification attempt")
		}
		return nil, apperr.BadRequest("invalid verification code")
	}
	if err := s.repo.DeleteVerificationCode(ctx, email); err != nil {
		s.log.WithError(err).Warn("failed to delete used verification code")
	}

	user, isNew, err := s.findOrCreateUser(ctx, email, name)
	if err != nil {
		return nil, err
	}
	if isNew {
		s.runSignupHooks(ctx, user)
	}

	token, expiresAt, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user.Public(), IsNew: isNew}, nil
}

func (s *CodeService) findOrCreateUser(ctx context.Context, email, name string) (*models.User, bool, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, err
	}

	user = &models.User{Email: email, Name: name, EmailVerified: true}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, false, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "email": email}).Info("user created")
	return user, true, nil
}

func (s *CodeService) runSignupHooks(ctx context.Context, user *models.User) {
	for _, hook := range s.hooks {
		if err := hook(ctx, user); err != nil {
			s.log.WithError(err).WithField("user_id", user.ID).Error("signup hook failed")
		}
	}
}
