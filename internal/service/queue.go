package service

import (
	"context"
	"time"

	"smsbridge/internal/constants"
	"smsbridge/internal/errors"
	"smsbridge/internal/metrics"
	"smsbridge/internal/models"
	"smsbridge/internal/validation"
	"smsbridge/pkg/matrix"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// QueueStorage owns the durable state of pending messages.
type QueueStorage interface {
	SavePendingMessage(ctx context.Context, msg *models.PendingMessage) (*models.PendingMessage, error)
	DeletePendingMessage(ctx context.Context, id int64) error
	DeletePendingMessagesByRoom(ctx context.Context, roomID string) error
	GetAllPendingMessages(ctx context.Context) ([]*models.PendingMessage, error)
	CountPendingMessages(ctx context.Context) (int, error)
	SaveMessageReceiver(ctx context.Context, messageID int64, userID string) error
	GetMessageReceivers(ctx context.Context, messageID int64) ([]string, error)
}

// MembershipOracle answers whether a room currently contains a user set.
type MembershipOracle interface {
	ContainsMembers(ctx context.Context, roomID string, userIDs []string) (bool, error)
}

// UserProvisioner lazily creates identity records. The bridge never assumes
// a user pre-exists before referencing it in a room operation.
type UserProvisioner interface {
	GetOrCreateUser(ctx context.Context, userID string, managed bool) error
}

// MessageQueue defers sending a room message until its required members are
// present, retrying on each drain until success or expiry.
type MessageQueue struct {
	storage    QueueStorage
	membership MembershipOracle
	users      UserProvisioner
	client     matrix.Client
	metrics    *metrics.Registry
	logger     *logrus.Logger
}

func NewMessageQueue(storage QueueStorage, membership MembershipOracle, users UserProvisioner, client matrix.Client, registry *metrics.Registry, logger *logrus.Logger) *MessageQueue {
	return &MessageQueue{
		storage:    storage,
		membership: membership,
		users:      users,
		client:     client,
		metrics:    registry,
		logger:     logger,
	}
}

// SendOrEnqueue attempts an immediate send when the message is due and all
// required members are present, and persists it for later otherwise. The
// acting sender, when set, is implicitly required in the room too.
func (q *MessageQueue) SendOrEnqueue(ctx context.Context, msg *models.PendingMessage, requiredMembers []string) error {
	isNew := msg.IsNew()
	now := time.Now()

	if !now.After(msg.SendAfter) {
		// Scheduled for later; nothing to evaluate yet.
		if isNew {
			return q.saveMessageAndReceivers(ctx, msg, requiredMembers)
		}
		return nil
	}

	required := requiredMembers
	if msg.AsUserID != "" {
		required = lo.Uniq(append(append([]string{}, requiredMembers...), msg.AsUserID))
	}

	present, err := q.membership.ContainsMembers(ctx, msg.RoomID, required)
	if err != nil {
		return err
	}

	if !present {
		if isNew {
			// Normalize to now so the message becomes eligible the
			// moment membership resolves.
			return q.saveMessageAndReceivers(ctx, msg.WithSendAfter(now), requiredMembers)
		}
		if q.isExpired(msg, now) {
			q.logger.WithFields(logrus.Fields{
				"roomId":    msg.RoomID,
				"messageId": msg.ID,
				"required":  required,
			}).Warn("Required members did not join within the expiry window. This usually should never happen. Dropping queued message")
			q.metrics.IncrementCounter("messages_expired")
			return q.deleteMessage(ctx, msg)
		}
		q.logger.WithField("roomId", msg.RoomID).Debug("Waiting for required members to join")
		return nil
	}

	_, sendErr := q.client.SendMessage(ctx, matrix.SendMessageRequest{
		RoomID:   msg.RoomID,
		Body:     msg.Body,
		IsNotice: msg.IsNotice,
		AsUserID: msg.AsUserID,
	})
	if sendErr != nil {
		// Happens e.g. when the bot was kicked out of the room before
		// the required members joined.
		q.logger.WithError(sendErr).WithFields(logrus.Fields{
			"roomId":    msg.RoomID,
			"messageId": msg.ID,
		}).Debug("Could not send queued message")
		if q.isExpired(msg, now) {
			q.logger.WithFields(logrus.Fields{
				"roomId":    msg.RoomID,
				"messageId": msg.ID,
			}).Warn("Sending kept failing for the whole expiry window. This usually should never happen. Dropping queued message")
			q.metrics.IncrementCounter("messages_expired")
			return q.deleteMessage(ctx, msg)
		}
		if isNew {
			return q.saveMessageAndReceivers(ctx, msg.WithSendAfter(now), requiredMembers)
		}
		return nil
	}

	q.logger.WithFields(logrus.Fields{
		"roomId":    msg.RoomID,
		"messageId": msg.ID,
	}).Debug("Sent queued message, removing from storage")
	q.metrics.IncrementCounter("messages_sent")
	return q.deleteMessage(ctx, msg)
}

// Drain re-evaluates every persisted message. It is safe to call
// concurrently and repeatedly; an already sent message no longer exists and
// a still pending one is simply re-checked.
func (q *MessageQueue) Drain(ctx context.Context) {
	start := time.Now()

	messages, err := q.storage.GetAllPendingMessages(ctx)
	if err != nil {
		errors.LogError(q.logger, err, "Failed to load pending messages for drain")
		return
	}

	for _, msg := range messages {
		receivers, err := q.storage.GetMessageReceivers(ctx, msg.ID)
		if err != nil {
			errors.LogError(q.logger, err, "Failed to load receivers of pending message",
				logrus.Fields{"messageId": msg.ID})
			continue
		}
		if err := q.SendOrEnqueue(ctx, msg, receivers); err != nil {
			errors.LogError(q.logger, err, "Failed to process pending message",
				logrus.Fields{"messageId": msg.ID})
		}
	}

	q.metrics.RecordTimer("queue_drain", time.Since(start))

	// The gauge reads the remainder, not the input set: messages sent or
	// expired in this pass are already gone.
	remaining, err := q.storage.CountPendingMessages(ctx)
	if err != nil {
		errors.LogError(q.logger, err, "Failed to count remaining pending messages")
		return
	}
	q.metrics.SetGauge("messages_pending", float64(remaining))
}

// DeleteByRoom drops every pending message scoped to a torn-down room.
func (q *MessageQueue) DeleteByRoom(ctx context.Context, roomID string) error {
	q.logger.WithField("roomId", roomID).Debug("Deleting pending messages of room")
	return q.storage.DeletePendingMessagesByRoom(ctx, roomID)
}

func (q *MessageQueue) saveMessageAndReceivers(ctx context.Context, msg *models.PendingMessage, requiredMembers []string) error {
	if msg.AsUserID != "" {
		if err := q.users.GetOrCreateUser(ctx, msg.AsUserID, true); err != nil {
			return err
		}
	}

	saved, err := q.storage.SavePendingMessage(ctx, msg)
	if err != nil {
		return err
	}
	if saved.IsNew() {
		return nil
	}

	for _, userID := range requiredMembers {
		if err := q.users.GetOrCreateUser(ctx, userID, validation.IsVirtualUserID(userID)); err != nil {
			return err
		}
		if err := q.storage.SaveMessageReceiver(ctx, saved.ID, userID); err != nil {
			return err
		}
	}

	q.metrics.IncrementCounter("messages_enqueued")
	return nil
}

func (q *MessageQueue) deleteMessage(ctx context.Context, msg *models.PendingMessage) error {
	if msg.IsNew() {
		return nil
	}
	return q.storage.DeletePendingMessage(ctx, msg.ID)
}

func (q *MessageQueue) isExpired(msg *models.PendingMessage, now time.Time) bool {
	return now.Sub(msg.SendAfter) > constants.PendingMessageExpiry
}
