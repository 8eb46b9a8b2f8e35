package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/repo"
)

func (e Engine) notify(ctx context.Context, tx repo.Tx, recipients []string, message, taskID string) error {
	now := e.stamp()
	for _, id := range dedupe(recipients) {
		n := domain.Notification{
			ID:          newID(),
			RecipientID: id,
			Message:     message,
			CreatedAt:   now,
			TaskID:      optionalString(taskID),
		}
		if err := tx.InsertNotification(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// ListNotifications returns the actor's notifications, newest first.
func (e Engine) ListNotifications(ctx context.Context, actorID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		var err error
		out, err = tx.ListNotifications(ctx, actor.ID)
		return err
	})
	return out, err
}

func (e Engine) MarkNotificationRead(ctx context.Context, actorID, id string) error {
	return e.mutate(ctx, "notification.read", actorID, logrus.Fields{"notification": id}, func(tx repo.Tx, actor domain.Person) error {
		n, err := tx.GetNotification(ctx, id)
		if err != nil {
			return err
		}
		if n.RecipientID != actor.ID {
			return domain.PermissionDenied("notification.read")
		}
		return tx.MarkNotificationRead(ctx, n.ID)
	})
}
