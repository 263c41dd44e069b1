package service

import (
	"context"
	"sync"

	"smsbridge/internal/models"
	"smsbridge/pkg/matrix"

	"github.com/stretchr/testify/mock"
)

// Mock Matrix client
type mockMatrixClient struct {
	mock.Mock
}

func (m *mockMatrixClient) SendMessage(ctx context.Context, req matrix.SendMessageRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockMatrixClient) CreateRoom(ctx context.Context, req matrix.CreateRoomRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockMatrixClient) InviteUser(ctx context.Context, roomID, userID, asUserID string) error {
	args := m.Called(ctx, roomID, userID, asUserID)
	return args.Error(0)
}

// Mock queue storage
type mockQueueStorage struct {
	mock.Mock
}

func (m *mockQueueStorage) SavePendingMessage(ctx context.Context, msg *models.PendingMessage) (*models.PendingMessage, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingMessage), args.Error(1)
}

func (m *mockQueueStorage) DeletePendingMessage(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockQueueStorage) DeletePendingMessagesByRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *mockQueueStorage) CountPendingMessages(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockQueueStorage) GetAllPendingMessages(ctx context.Context) ([]*models.PendingMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PendingMessage), args.Error(1)
}

func (m *mockQueueStorage) SaveMessageReceiver(ctx context.Context, messageID int64, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *mockQueueStorage) GetMessageReceivers(ctx context.Context, messageID int64) ([]string, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Mock membership oracle
type mockMembershipOracle struct {
	mock.Mock
}

func (m *mockMembershipOracle) ContainsMembers(ctx context.Context, roomID string, userIDs []string) (bool, error) {
	args := m.Called(ctx, roomID, userIDs)
	return args.Bool(0), args.Error(1)
}

// Mock room directory
type mockRoomDirectory struct {
	mock.Mock
}

func (m *mockRoomDirectory) FindRoomsByMembers(ctx context.Context, userIDs []string, limit int) ([]*models.CandidateRoom, error) {
	args := m.Called(ctx, userIDs, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CandidateRoom), args.Error(1)
}

func (m *mockRoomDirectory) FindRoomsByExactMembers(ctx context.Context, userIDs []string, excludeUserID string, limit int) ([]*models.CandidateRoom, error) {
	args := m.Called(ctx, userIDs, excludeUserID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CandidateRoom), args.Error(1)
}

// Simple user provisioner fake that records created users
type fakeUserProvisioner struct {
	mu      sync.Mutex
	created map[string]bool
	err     error
}

func newFakeUserProvisioner() *fakeUserProvisioner {
	return &fakeUserProvisioner{created: make(map[string]bool)}
}

func (f *fakeUserProvisioner) GetOrCreateUser(ctx context.Context, userID string, managed bool) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[userID] = managed
	return nil
}

// Simple membership recorder fake that records (room, user) pairs
type fakeMembershipRecorder struct {
	mu       sync.Mutex
	recorded [][2]string
	err      error
}

func (f *fakeMembershipRecorder) RecordMembership(ctx context.Context, roomID, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, [2]string{roomID, userID})
	return nil
}

// Mock mapping token resolver
type mockTokenResolver struct {
	mock.Mock
}

func (m *mockTokenResolver) ResolveMappingToken(ctx context.Context, token int, userID string) (string, error) {
	args := m.Called(ctx, token, userID)
	return args.String(0), args.Error(1)
}

// Drain counter for scheduler tests
type countingDrainer struct {
	mu     sync.Mutex
	drains int
}

func (c *countingDrainer) Drain(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drains++
}

func (c *countingDrainer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drains
}
