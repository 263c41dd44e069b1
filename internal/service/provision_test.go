package service

import (
	"context"
	"fmt"
	"testing"

	"smsbridge/internal/models"
	"smsbridge/pkg/matrix"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBotID      = "@smsbot:example.org"
	testSenderID   = "@alice:example.org"
	testReceiverID = "@sms_491701234567:example.org"
)

func newTestProvisioner(directory *mockRoomDirectory, client *mockMatrixClient, allowSuperset bool) (*RoomProvisioner, *fakeUserProvisioner, *fakeMembershipRecorder) {
	users := newFakeUserProvisioner()
	memberships := &fakeMembershipRecorder{}
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewRoomProvisioner(directory, users, memberships, client, testBotID, allowSuperset, logger), users, memberships
}

func candidateRoom(roomID string, members ...models.RoomMember) *models.CandidateRoom {
	return &models.CandidateRoom{RoomID: roomID, Members: members}
}

func TestResolveRoom_AutoCreatesWhenNoCandidateExists(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, users, memberships := newTestProvisioner(directory, client, false)

	directory.On("FindRoomsByExactMembers", mock.Anything, []string{testReceiverID, testSenderID}, testBotID, 2).
		Return([]*models.CandidateRoom{}, nil)
	client.On("CreateRoom", mock.Anything, matrix.CreateRoomRequest{
		Name:   "sms chat",
		Invite: []string{testReceiverID, testSenderID},
		Preset: matrix.PresetTrustedPrivateChat,
	}).Return("!new:example.org", nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "sms chat", models.RoomCreationAuto)

	require.NoError(t, err)
	assert.Equal(t, ProvisionCreated, result.Outcome)
	assert.Equal(t, "!new:example.org", result.RoomID)

	// The creator joins immediately, invitees only hold invites.
	assert.Equal(t, [][2]string{{"!new:example.org", testBotID}}, memberships.recorded)
	assert.True(t, users.created[testReceiverID])
	managed, ok := users.created[testSenderID]
	assert.True(t, ok)
	assert.False(t, managed)
}

func TestResolveRoom_AutoReusesSingleCandidate(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, false)

	room := candidateRoom("!existing:example.org",
		models.RoomMember{UserID: testBotID, IsManaged: true},
		models.RoomMember{UserID: testReceiverID, IsManaged: true},
		models.RoomMember{UserID: testSenderID},
	)
	directory.On("FindRoomsByExactMembers", mock.Anything, mock.Anything, testBotID, 2).
		Return([]*models.CandidateRoom{room}, nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)

	require.NoError(t, err)
	assert.Equal(t, ProvisionReused, result.Outcome)
	assert.Equal(t, "!existing:example.org", result.RoomID)

	result, err = provisioner.CommitReuse(context.Background(), result, []string{testReceiverID})

	require.NoError(t, err)
	assert.Equal(t, ProvisionReused, result.Outcome)
	client.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "InviteUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveRoom_AlwaysCreatesDespiteExistingCandidate(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, false)

	room := candidateRoom("!existing:example.org",
		models.RoomMember{UserID: testReceiverID, IsManaged: true},
		models.RoomMember{UserID: testSenderID},
	)
	directory.On("FindRoomsByExactMembers", mock.Anything, mock.Anything, testBotID, 2).
		Return([]*models.CandidateRoom{room}, nil)
	client.On("CreateRoom", mock.Anything, mock.Anything).Return("!fresh:example.org", nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAlways)

	require.NoError(t, err)
	assert.Equal(t, ProvisionCreated, result.Outcome)
	assert.Equal(t, "!fresh:example.org", result.RoomID)
}

func TestResolveRoom_TooManyCandidatesRefusesToGuess(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, true)

	rooms := []*models.CandidateRoom{
		candidateRoom("!a:example.org", models.RoomMember{UserID: testReceiverID, IsManaged: true}),
		candidateRoom("!b:example.org", models.RoomMember{UserID: testReceiverID, IsManaged: true}),
	}
	directory.On("FindRoomsByMembers", mock.Anything, mock.Anything, 2).Return(rooms, nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)

	require.NoError(t, err)
	assert.Equal(t, ProvisionTooManyRooms, result.Outcome)
	client.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything)
}

func TestResolveRoom_NoModeWithoutCandidateIsDisabled(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, false)

	directory.On("FindRoomsByExactMembers", mock.Anything, mock.Anything, testBotID, 2).
		Return([]*models.CandidateRoom{}, nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationNo)

	require.NoError(t, err)
	assert.Equal(t, ProvisionDisabled, result.Outcome)
	client.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything)
}

func TestResolveRoom_ExactMatchQueriesExactDirectory(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, false)

	// Exact matching happens in the directory, with the bot excluded from
	// the room-size comparison.
	room := candidateRoom("!existing:example.org",
		models.RoomMember{UserID: testBotID, IsManaged: true},
		models.RoomMember{UserID: testReceiverID, IsManaged: true},
		models.RoomMember{UserID: testSenderID},
	)
	directory.On("FindRoomsByExactMembers", mock.Anything, []string{testReceiverID, testSenderID}, testBotID, 2).
		Return([]*models.CandidateRoom{room}, nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)

	require.NoError(t, err)
	assert.Equal(t, ProvisionReused, result.Outcome)
	directory.AssertExpectations(t)
	directory.AssertNotCalled(t, "FindRoomsByMembers", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveRoom_SupersetCandidateIsReusedWhenAllowed(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, true)

	room := candidateRoom("!bigger:example.org",
		models.RoomMember{UserID: testBotID, IsManaged: true},
		models.RoomMember{UserID: testReceiverID, IsManaged: true},
		models.RoomMember{UserID: testSenderID},
		models.RoomMember{UserID: "@bob:example.org"},
	)
	directory.On("FindRoomsByMembers", mock.Anything, mock.Anything, 2).
		Return([]*models.CandidateRoom{room}, nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)

	require.NoError(t, err)
	assert.Equal(t, ProvisionReused, result.Outcome)
	assert.Equal(t, "!bigger:example.org", result.RoomID)
	directory.AssertNotCalled(t, "FindRoomsByExactMembers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitReuse_ManagedCountMismatchDisablesReuse(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, true)

	// Two managed members besides the bot, but only one receiver requested:
	// the room belongs to a different conversation.
	room := candidateRoom("!existing:example.org",
		models.RoomMember{UserID: testBotID, IsManaged: true},
		models.RoomMember{UserID: testReceiverID, IsManaged: true},
		models.RoomMember{UserID: "@sms_491708888888:example.org", IsManaged: true},
		models.RoomMember{UserID: testSenderID},
	)
	directory.On("FindRoomsByMembers", mock.Anything, mock.Anything, 2).
		Return([]*models.CandidateRoom{room}, nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)
	require.NoError(t, err)
	require.Equal(t, ProvisionReused, result.Outcome)

	result, err = provisioner.CommitReuse(context.Background(), result, []string{testReceiverID})

	require.NoError(t, err)
	assert.Equal(t, ProvisionDisabled, result.Outcome)
}

func TestCommitReuse_InvitesBotAsReceiverWhenNotMember(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, false)

	room := candidateRoom("!existing:example.org",
		models.RoomMember{UserID: testReceiverID, IsManaged: true},
		models.RoomMember{UserID: testSenderID},
	)
	directory.On("FindRoomsByExactMembers", mock.Anything, mock.Anything, testBotID, 2).
		Return([]*models.CandidateRoom{room}, nil)
	client.On("InviteUser", mock.Anything, "!existing:example.org", testBotID, testReceiverID).Return(nil)

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)
	require.NoError(t, err)
	require.Equal(t, ProvisionReused, result.Outcome)

	// Resolving alone leaves the room untouched; the invite only goes out
	// once the reuse is committed.
	client.AssertNotCalled(t, "InviteUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	result, err = provisioner.CommitReuse(context.Background(), result, []string{testReceiverID})

	require.NoError(t, err)
	assert.Equal(t, ProvisionReused, result.Outcome)
	client.AssertExpectations(t)
}

func TestResolveRoom_SenderEqualToBotIsFilteredOut(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, _ := newTestProvisioner(directory, client, false)

	directory.On("FindRoomsByExactMembers", mock.Anything, []string{testReceiverID}, testBotID, 2).
		Return([]*models.CandidateRoom{}, nil)
	client.On("CreateRoom", mock.Anything, matrix.CreateRoomRequest{
		Invite: []string{testReceiverID},
		Preset: matrix.PresetTrustedPrivateChat,
	}).Return("!new:example.org", nil)

	result, err := provisioner.ResolveRoom(context.Background(), testBotID, []string{testReceiverID}, "", models.RoomCreationAuto)

	require.NoError(t, err)
	assert.Equal(t, ProvisionCreated, result.Outcome)
	directory.AssertExpectations(t)
}

func TestResolveRoom_CreateRoomErrorPropagates(t *testing.T) {
	directory := &mockRoomDirectory{}
	client := &mockMatrixClient{}
	provisioner, _, memberships := newTestProvisioner(directory, client, false)

	directory.On("FindRoomsByExactMembers", mock.Anything, mock.Anything, testBotID, 2).
		Return([]*models.CandidateRoom{}, nil)
	client.On("CreateRoom", mock.Anything, mock.Anything).Return("", fmt.Errorf("connection refused"))

	result, err := provisioner.ResolveRoom(context.Background(), testSenderID, []string{testReceiverID}, "", models.RoomCreationAuto)

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, memberships.recorded)
}
