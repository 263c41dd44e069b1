package service

import (
	"context"

	"smsbridge/internal/constants"
	"smsbridge/internal/models"
	"smsbridge/internal/validation"
	"smsbridge/pkg/matrix"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// RoomDirectory looks up candidate rooms by participant set. The exact
// variant matches the set precisely (ignoring excludeUserID) and must apply
// that predicate before cutting off at limit.
type RoomDirectory interface {
	FindRoomsByMembers(ctx context.Context, userIDs []string, limit int) ([]*models.CandidateRoom, error)
	FindRoomsByExactMembers(ctx context.Context, userIDs []string, excludeUserID string, limit int) ([]*models.CandidateRoom, error)
}

// MembershipRecorder tracks room membership the bridge learns about.
type MembershipRecorder interface {
	RecordMembership(ctx context.Context, roomID, userID string) error
}

// ProvisionOutcome is the decision the policy arrived at.
type ProvisionOutcome int

const (
	// ProvisionCreated means a fresh room was created and invites issued.
	ProvisionCreated ProvisionOutcome = iota
	// ProvisionReused means an existing room passed the membership check.
	ProvisionReused
	// ProvisionDisabled means no suitable room exists and creation is not
	// allowed, or the one candidate's state contradicts expectations.
	ProvisionDisabled
	// ProvisionTooManyRooms means the participant set is ambiguous.
	ProvisionTooManyRooms
)

// ProvisionResult carries the decision and, for the successful outcomes,
// the target room. For a reuse decision the candidate's membership checks
// are deferred to CommitReuse so callers can bail out without side effects.
type ProvisionResult struct {
	Outcome ProvisionOutcome
	RoomID  string

	room *models.CandidateRoom
}

// RoomProvisioner decides whether to reuse, create, or refuse a room for a
// participant set. One call is one atomic decision; no partial side effects
// are left behind on the non-taken branch.
type RoomProvisioner struct {
	directory     RoomDirectory
	users         UserProvisioner
	memberships   MembershipRecorder
	client        matrix.Client
	botUserID     string
	allowSuperset bool
	logger        *logrus.Logger
}

func NewRoomProvisioner(directory RoomDirectory, users UserProvisioner, memberships MembershipRecorder, client matrix.Client, botUserID string, allowSuperset bool, logger *logrus.Logger) *RoomProvisioner {
	return &RoomProvisioner{
		directory:     directory,
		users:         users,
		memberships:   memberships,
		client:        client,
		botUserID:     botUserID,
		allowSuperset: allowSuperset,
		logger:        logger,
	}
}

// ResolveRoom applies the creation-mode decision table to the candidate
// rooms for {sender} ∪ receivers: exact-membership matches by default,
// superset rooms when configured (the bridge bot never counts as a
// participant).
func (p *RoomProvisioner) ResolveRoom(ctx context.Context, senderID string, receiverIDs []string, roomName string, mode models.RoomCreationMode) (*ProvisionResult, error) {
	participants := lo.Uniq(append(append([]string{}, receiverIDs...), senderID))
	participants = lo.Filter(participants, func(id string, _ int) bool {
		return id != p.botUserID
	})

	var rooms []*models.CandidateRoom
	var err error
	if p.allowSuperset {
		rooms, err = p.directory.FindRoomsByMembers(ctx, participants, constants.RoomCandidateLimit)
	} else {
		rooms, err = p.directory.FindRoomsByExactMembers(ctx, participants, p.botUserID, constants.RoomCandidateLimit)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case (len(rooms) == 0 && mode == models.RoomCreationAuto) || mode == models.RoomCreationAlways:
		return p.createRoom(ctx, roomName, participants)
	case len(rooms) == 1:
		return &ProvisionResult{Outcome: ProvisionReused, RoomID: rooms[0].RoomID, room: rooms[0]}, nil
	case len(rooms) > 1:
		p.logger.WithField("participants", participants).Debug("More than one candidate room, refusing to guess")
		return &ProvisionResult{Outcome: ProvisionTooManyRooms}, nil
	default:
		return &ProvisionResult{Outcome: ProvisionDisabled}, nil
	}
}

func (p *RoomProvisioner) createRoom(ctx context.Context, roomName string, participants []string) (*ProvisionResult, error) {
	p.logger.WithFields(logrus.Fields{
		"name":         roomName,
		"participants": participants,
	}).Debug("Creating room")

	roomID, err := p.client.CreateRoom(ctx, matrix.CreateRoomRequest{
		Name:   roomName,
		Invite: participants,
		Preset: matrix.PresetTrustedPrivateChat,
	})
	if err != nil {
		return nil, err
	}

	for _, userID := range participants {
		if err := p.users.GetOrCreateUser(ctx, userID, validation.IsVirtualUserID(userID)); err != nil {
			return nil, err
		}
	}

	// The bot joins its own room immediately as creator; everyone else
	// only holds an invite until their join event arrives.
	if err := p.memberships.RecordMembership(ctx, roomID, p.botUserID); err != nil {
		return nil, err
	}

	return &ProvisionResult{Outcome: ProvisionCreated, RoomID: roomID}, nil
}

// CommitReuse runs the deferred checks of a reuse decision: the candidate
// must look like a conversation with exactly these receivers, and the bot is
// invited when it is not a member yet.
func (p *RoomProvisioner) CommitReuse(ctx context.Context, result *ProvisionResult, receiverIDs []string) (*ProvisionResult, error) {
	return p.reuseRoom(ctx, result.room, receiverIDs)
}

func (p *RoomProvisioner) reuseRoom(ctx context.Context, room *models.CandidateRoom, receiverIDs []string) (*ProvisionResult, error) {
	botIsMember := room.HasMember(p.botUserID)

	expectedManaged := len(receiverIDs)
	if botIsMember {
		expectedManaged++
	}
	if room.ManagedCount() != expectedManaged {
		p.logger.WithFields(logrus.Fields{
			"roomId":   room.RoomID,
			"managed":  room.ManagedCount(),
			"expected": expectedManaged,
		}).Debug("Managed member count does not match expectation, refusing to reuse room")
		return &ProvisionResult{Outcome: ProvisionDisabled}, nil
	}

	if !botIsMember {
		// Invite the bot as one of the receivers so the invite appears
		// to originate from within the conversation.
		asUserID := ""
		if len(receiverIDs) > 0 {
			asUserID = receiverIDs[0]
		}
		p.logger.WithField("roomId", room.RoomID).Debug("Inviting bot to room, message will be queued until it joins")
		if err := p.client.InviteUser(ctx, room.RoomID, p.botUserID, asUserID); err != nil {
			return nil, err
		}
	}

	return &ProvisionResult{Outcome: ProvisionReused, RoomID: room.RoomID}, nil
}
