package service

import (
	"context"
	"strings"
	"time"

	"smsbridge/internal/constants"
	"smsbridge/internal/errors"
	"smsbridge/internal/models"
	"smsbridge/internal/validation"

	"github.com/sirupsen/logrus"
)

// SendRequest is one "send SMS-origin message" command.
type SendRequest struct {
	Body            string
	SenderID        string
	ReceiverNumbers []string
	RoomName        string
	// SendAfter is interpreted as wall-clock time in the bridge's
	// configured default time zone.
	SendAfter *time.Time
	Mode      models.RoomCreationMode
}

// CommandService is the user-facing outbound flow: it resolves or creates
// the target room and hands the message to the delivery queue. Every
// invocation produces exactly one reply string; internal errors never
// escape.
type CommandService struct {
	provisioner *RoomProvisioner
	queue       *MessageQueue
	templates   models.Templates
	serverName  string
	location    *time.Location
	logger      *logrus.Logger
}

func NewCommandService(provisioner *RoomProvisioner, queue *MessageQueue, templates models.Templates, serverName string, location *time.Location, logger *logrus.Logger) *CommandService {
	if location == nil {
		location = time.UTC
	}
	return &CommandService{
		provisioner: provisioner,
		queue:       queue,
		templates:   templates,
		serverName:  serverName,
		location:    location,
		logger:      logger,
	}
}

// SendToReceivers runs the full outbound flow and returns the rendered
// reply for the issuing user.
func (s *CommandService) SendToReceivers(ctx context.Context, req SendRequest) string {
	return s.sendToReceivers(ctx, req).Render(s.templates, req.ReceiverNumbers)
}

func (s *CommandService) sendToReceivers(ctx context.Context, req SendRequest) Outcome {
	receiverIDs := make([]string, len(req.ReceiverNumbers))
	for i, number := range req.ReceiverNumbers {
		id, err := validation.VirtualUserID(number, s.serverName)
		if err != nil {
			return Outcome{Kind: OutcomeError, Err: err}
		}
		receiverIDs[i] = id
	}

	sendAfter := s.resolveSendAfter(req.SendAfter)

	result, err := s.provisioner.ResolveRoom(ctx, req.SenderID, receiverIDs, req.RoomName, req.Mode)
	if err != nil {
		errors.LogWarn(s.logger, err, "Creating room, joining room or sending message failed")
		return Outcome{Kind: OutcomeError, Err: err}
	}

	switch result.Outcome {
	case ProvisionTooManyRooms:
		return Outcome{Kind: OutcomeTooManyRooms}
	case ProvisionDisabled:
		return Outcome{Kind: OutcomeDisabledRoomCreation}
	}

	hasBody := strings.TrimSpace(req.Body) != ""

	if result.Outcome == ProvisionCreated {
		if hasBody {
			if err := s.sendMessageToRoom(ctx, result.RoomID, req.SenderID, req.Body, receiverIDs, sendAfter); err != nil {
				errors.LogWarn(s.logger, err, "Creating room, joining room or sending message failed")
				return Outcome{Kind: OutcomeError, Err: err}
			}
		}
		return Outcome{Kind: OutcomeCreatedAndSent}
	}

	// Without a body the reuse checks never run, so an empty command
	// leaves no invite or other side effect behind.
	if !hasBody {
		return Outcome{Kind: OutcomeNoMessage}
	}

	result, err = s.provisioner.CommitReuse(ctx, result, receiverIDs)
	if err != nil {
		errors.LogWarn(s.logger, err, "Creating room, joining room or sending message failed")
		return Outcome{Kind: OutcomeError, Err: err}
	}
	if result.Outcome == ProvisionDisabled {
		return Outcome{Kind: OutcomeDisabledRoomCreation}
	}

	if err := s.sendMessageToRoom(ctx, result.RoomID, req.SenderID, req.Body, receiverIDs, sendAfter); err != nil {
		errors.LogWarn(s.logger, err, "Creating room, joining room or sending message failed")
		return Outcome{Kind: OutcomeError, Err: err}
	}
	return Outcome{Kind: OutcomeSentToExisting}
}

func (s *CommandService) sendMessageToRoom(ctx context.Context, roomID, senderID, body string, receiverIDs []string, sendAfter *time.Time) error {
	if sendAfter != nil && time.Until(*sendAfter) > constants.DelayedNoticeThreshold {
		s.logger.WithField("roomId", roomID).Debug("Notifying room that the message will be sent later")
		notice := &models.PendingMessage{
			RoomID:   roomID,
			IsNotice: true,
			Body: models.Render(s.templates.SendNoticeDelayed, map[string]string{
				"sendAfter": sendAfter.In(s.location).Format("2006-01-02 15:04:05"),
			}),
			SendAfter: time.Now(),
		}
		if err := s.queue.SendOrEnqueue(ctx, notice, receiverIDs); err != nil {
			return err
		}
	}

	when := time.Now()
	if sendAfter != nil {
		when = *sendAfter
	}

	s.logger.WithField("roomId", roomID).Debug("Sending message to room")
	msg := &models.PendingMessage{
		RoomID: roomID,
		Body: models.Render(s.templates.SendNewRoomMessage, map[string]string{
			"sender": senderID,
			"body":   body,
		}),
		SendAfter: when,
	}
	return s.queue.SendOrEnqueue(ctx, msg, receiverIDs)
}

func (s *CommandService) resolveSendAfter(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.location)
	return &local
}
