package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"smsbridge/internal/migrations"
	"smsbridge/internal/models"
	"smsbridge/internal/validation"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := validation.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	// Foreign keys are required for the receiver cascade on message delete.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SavePendingMessage inserts an unpersisted message and returns a copy with
// its assigned identifier. Re-saving a persisted message only refreshes its
// earliest-send time, and only forward; the timestamp never moves backwards.
func (d *Database) SavePendingMessage(ctx context.Context, msg *models.PendingMessage) (*models.PendingMessage, error) {
	encryptedBody, err := d.encryptor.EncryptIfEnabled(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message body: %w", err)
	}

	saved := *msg

	if msg.IsNew() {
		err = retryableDBOperationNoReturn(ctx, func() error {
			result, execErr := d.db.ExecContext(ctx, InsertPendingMessageQuery,
				msg.RoomID, encryptedBody, msg.IsNotice, msg.AsUserID, msg.SendAfter.UTC())
			if execErr != nil {
				return execErr
			}
			id, idErr := result.LastInsertId()
			if idErr != nil {
				return idErr
			}
			saved.ID = id
			return nil
		}, "insert pending message")
		if err != nil {
			return nil, fmt.Errorf("failed to save pending message: %w", err)
		}
		return &saved, nil
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, UpdatePendingMessageSendAfterQuery,
			msg.SendAfter.UTC(), msg.ID, msg.SendAfter.UTC())
		return execErr
	}, "update pending message")
	if err != nil {
		return nil, fmt.Errorf("failed to update pending message: %w", err)
	}
	return &saved, nil
}

func (d *Database) DeletePendingMessage(ctx context.Context, id int64) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, DeletePendingMessageQuery, id)
		return err
	}, "delete pending message")
}

func (d *Database) DeletePendingMessagesByRoom(ctx context.Context, roomID string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, DeletePendingMessagesByRoomQuery, roomID)
		return err
	}, "delete pending messages by room")
}

// GetAllPendingMessages returns every queued message, unordered. Each drain
// cycle re-reads the full set.
func (d *Database) GetAllPendingMessages(ctx context.Context) ([]*models.PendingMessage, error) {
	rows, err := d.db.QueryContext(ctx, SelectAllPendingMessagesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.PendingMessage
	for rows.Next() {
		msg := &models.PendingMessage{}
		var encryptedBody string
		if err := rows.Scan(&msg.ID, &msg.RoomID, &encryptedBody, &msg.IsNotice,
			&msg.AsUserID, &msg.SendAfter, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		msg.Body, err = d.encryptor.DecryptIfEnabled(encryptedBody)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message body: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending messages: %w", err)
	}
	return messages, nil
}

func (d *Database) CountPendingMessages(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, CountPendingMessagesQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return count, nil
}

func (d *Database) SaveMessageReceiver(ctx context.Context, messageID int64, userID string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertMessageReceiverQuery, messageID, userID)
		return err
	}, "save message receiver")
}

func (d *Database) GetMessageReceivers(ctx context.Context, messageID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, SelectMessageReceiversQuery, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query message receivers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receivers []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan message receiver: %w", err)
		}
		receivers = append(receivers, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message receivers: %w", err)
	}
	return receivers, nil
}

// GetOrCreateUser lazily provisions a user record. Creating an already
// known user is a no-op and never downgrades its managed flag.
func (d *Database) GetOrCreateUser(ctx context.Context, userID string, managed bool) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertUserQuery, userID, managed)
		return err
	}, "get or create user")
}

func (d *Database) RecordMembership(ctx context.Context, roomID, userID string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertMembershipQuery, roomID, userID)
		return err
	}, "record membership")
}

func (d *Database) RemoveMembership(ctx context.Context, roomID, userID string) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, DeleteMembershipQuery, roomID, userID)
		return err
	}, "remove membership")
}

// ContainsMembers reports whether the room currently contains every user in
// the set. An empty set is trivially contained.
func (d *Database) ContainsMembers(ctx context.Context, roomID string, userIDs []string) (bool, error) {
	if len(userIDs) == 0 {
		return true, nil
	}

	query := fmt.Sprintf(CountPresentMembersQuery, placeholders(len(userIDs)))
	args := make([]interface{}, 0, len(userIDs)+1)
	args = append(args, roomID)
	for _, id := range userIDs {
		args = append(args, id)
	}

	var count int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count present members: %w", err)
	}
	return count == len(userIDs), nil
}

// FindRoomsByMembers returns up to limit rooms containing every user in the
// set, each with its full annotated member roster.
func (d *Database) FindRoomsByMembers(ctx context.Context, userIDs []string, limit int) ([]*models.CandidateRoom, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(SelectRoomsContainingMembersQuery, placeholders(len(userIDs)))
	args := make([]interface{}, 0, len(userIDs)+2)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, len(userIDs), limit)

	return d.collectCandidateRooms(ctx, query, args)
}

// FindRoomsByExactMembers returns up to limit rooms whose membership is
// exactly the given user set, ignoring excludeUserID. The size check is part
// of the query, so superset rooms never crowd out an exact match.
func (d *Database) FindRoomsByExactMembers(ctx context.Context, userIDs []string, excludeUserID string, limit int) ([]*models.CandidateRoom, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(SelectRoomsWithExactMembersQuery, placeholders(len(userIDs)))
	args := make([]interface{}, 0, len(userIDs)+4)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, len(userIDs), excludeUserID, len(userIDs), limit)

	return d.collectCandidateRooms(ctx, query, args)
}

func (d *Database) collectCandidateRooms(ctx context.Context, query string, args []interface{}) ([]*models.CandidateRoom, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms by members: %w", err)
	}

	var roomIDs []string
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		roomIDs = append(roomIDs, roomID)
	}
	closeErr := rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close room rows: %w", closeErr)
	}

	rooms := make([]*models.CandidateRoom, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		room, err := d.getRoomMembers(ctx, roomID)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (d *Database) getRoomMembers(ctx context.Context, roomID string) (*models.CandidateRoom, error) {
	rows, err := d.db.QueryContext(ctx, SelectRoomMembersQuery, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	room := &models.CandidateRoom{RoomID: roomID}
	for rows.Next() {
		var member models.RoomMember
		if err := rows.Scan(&member.UserID, &member.IsManaged); err != nil {
			return nil, fmt.Errorf("failed to scan room member: %w", err)
		}
		room.Members = append(room.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room members: %w", err)
	}
	return room, nil
}

// AllocateMappingToken returns the token routing (virtual user, room),
// assigning the user's next free token on first use. Tokens count up from 1
// per user; allocation is idempotent per (user, room) pair.
func (d *Database) AllocateMappingToken(ctx context.Context, userID, roomID string) (int, error) {
	var token int
	err := d.db.QueryRowContext(ctx, SelectMappingTokenForRoomQuery, userID, roomID).Scan(&token)
	if err == nil {
		return token, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up mapping token: %w", err)
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, InsertNextMappingTokenQuery, userID, roomID, userID)
		return execErr
	}, "allocate mapping token")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate mapping token: %w", err)
	}

	if err := d.db.QueryRowContext(ctx, SelectMappingTokenForRoomQuery, userID, roomID).Scan(&token); err != nil {
		return 0, fmt.Errorf("failed to read back mapping token: %w", err)
	}
	return token, nil
}

// ResolveMappingToken returns the room mapped for (token, virtual user), or
// the empty string when no mapping exists. Absence is not an error.
func (d *Database) ResolveMappingToken(ctx context.Context, token int, userID string) (string, error) {
	var roomID string
	err := d.db.QueryRowContext(ctx, SelectMappingTokenRoomQuery, token, userID).Scan(&roomID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve mapping token: %w", err)
	}
	return roomID, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
