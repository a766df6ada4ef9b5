package repository

import (
	"context"
	"sort"

	"taskboard/models"
)

func (r *Repository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	now := r.now()
	inv.ID = r.store.PushID(models.CollectionInvitations)
	inv.MemberEmail = NormalizeEmail(inv.MemberEmail)
	if inv.Status == "" {
		inv.Status = models.InvitationPending
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now
	return r.set(ctx, models.CollectionInvitations, inv.ID, inv, "invitation")
}

func (r *Repository) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.get(ctx, models.CollectionInvitations, id, &inv, "invitation"); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) UpdateInvitation(ctx context.Context, id string, fields map[string]any) error {
	return r.update(ctx, models.CollectionInvitations, id, fields, "invitation")
}

// InvitationsForBoard returns the board's invitations, newest first.
func (r *Repository) InvitationsForBoard(ctx context.Context, boardID string) ([]models.Invitation, error) {
	invs, err := query[models.Invitation](ctx, r, models.CollectionInvitations, "boardId", boardID)
	if err != nil {
		return nil, err
	}
	sortInvitations(invs)
	return invs, nil
}

func (r *Repository) InvitationsForMember(ctx context.Context, memberID string) ([]models.Invitation, error) {
	invs, err := query[models.Invitation](ctx, r, models.CollectionInvitations, "memberId", memberID)
	if err != nil {
		return nil, err
	}
	sortInvitations(invs)
	return invs, nil
}

func (r *Repository) InvitationsForEmail(ctx context.Context, email string) ([]models.Invitation, error) {
	invs, err := query[models.Invitation](ctx, r, models.CollectionInvitations, "memberEmail", NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	sortInvitations(invs)
	return invs, nil
}

// FindPendingInvitation returns the pending invitation on boardID addressed
// to memberID or email, or nil when there is none.
func (r *Repository) FindPendingInvitation(ctx context.Context, boardID, memberID, email string) (*models.Invitation, error) {
	invs, err := query[models.Invitation](ctx, r, models.CollectionInvitations, "boardId", boardID)
	if err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	for i := range invs {
		inv := invs[i]
		if inv.Status != models.InvitationPending {
			continue
		}
		if (memberID != "" && inv.MemberID == memberID) || (email != "" && inv.MemberEmail == email) {
			return &inv, nil
		}
	}
	return nil, nil
}

func sortInvitations(invs []models.Invitation) {
	sort.SliceStable(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
}
