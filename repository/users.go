package repository

import (
	"context"
	"strings"

	"taskboard/apperr"
	"taskboard/models"
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	now := r.now()
	if u.ID == "" {
		u.ID = r.store.PushID(models.CollectionUsers)
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now
	return r.set(ctx, models.CollectionUsers, u.ID, u, "user")
}

func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.get(ctx, models.CollectionUsers, id, &u, "user"); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail returns a not_found error when no account uses email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := query[models.User](ctx, r, models.CollectionUsers, "email", NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperr.NotFound("user not found")
	}
	return &users[0], nil
}

func (r *Repository) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	return r.update(ctx, models.CollectionUsers, id, fields, "user")
}

func (r *Repository) SaveVerificationCode(ctx context.Context, vc *models.VerificationCode) error {
	vc.Email = NormalizeEmail(vc.Email)
	return r.set(ctx, models.CollectionVerificationCodes, vc.Email, vc, "verification code")
}

func (r *Repository) GetVerificationCode(ctx context.Context, email string) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	if err := r.get(ctx, models.CollectionVerificationCodes, NormalizeEmail(email), &vc, "verification code"); err != nil {
		return nil, err
	}
	return &vc, nil
}

func (r *Repository) SetVerificationAttempts(ctx context.Context, email string, attempts int) error {
	return r.update(ctx, models.CollectionVerificationCodes, NormalizeEmail(email), map[string]any{"attempts": attempts}, "verification code")
}

func (r *Repository) DeleteVerificationCode(ctx context.Context, email string) error {
	return r.delete(ctx, models.CollectionVerificationCodes, NormalizeEmail(email), "verification code")
}
