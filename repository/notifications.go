package repository

import (
	"context"
	"sort"
	"time"

	"taskboard/models"
)

func (r *Repository) CreateNotification(ctx context.Context, n *models.Notification) error {
	now := r.now()
	n.ID = r.store.PushID(models.CollectionNotifications)
	n.CreatedAt = now
	n.UpdatedAt = now
	return r.set(ctx, models.CollectionNotifications, n.ID, n, "notification")
}

func (r *Repository) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.get(ctx, models.CollectionNotifications, id, &n, "notification"); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *Repository) SaveNotification(ctx context.Context, n *models.Notification) error {
	n.UpdatedAt = r.now()
	return r.set(ctx, models.CollectionNotifications, n.ID, n, "notification")
}

func (r *Repository) UpdateNotification(ctx context.Context, id string, fields map[string]any) error {
	return r.update(ctx, models.CollectionNotifications, id, fields, "notification")
}

func (r *Repository) DeleteNotification(ctx context.Context, id string) error {
	return r.delete(ctx, models.CollectionNotifications, id, "notification")
}

// NotificationsForRecipient returns the user's notifications, newest first.
func (r *Repository) NotificationsForRecipient(ctx context.Context, userID string) ([]models.Notification, error) {
	ns, err := query[models.Notification](ctx, r, models.CollectionNotifications, "recipientId", userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].CreatedAt.After(ns[j].CreatedAt) })
	return ns, nil
}

func (r *Repository) NotificationsForInvitation(ctx context.Context, invitationID string) ([]models.Notification, error) {
	return query[models.Notification](ctx, r, models.CollectionNotifications, "data.invitationId", invitationID)
}

// NotificationsOlderThan returns notifications created before cutoff.
func (r *Repository) NotificationsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Notification, error) {
	all, err := list[models.Notification](ctx, r, models.CollectionNotifications)
	if err != nil {
		return nil, err
	}
	old := make([]models.Notification, 0)
	for _, n := range all {
		if n.CreatedAt.Before(cutoff) {
			old = append(old, n)
		}
	}
	return old, nil
}
