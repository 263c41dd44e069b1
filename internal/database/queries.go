package database

// Pending message queries
const (
	InsertPendingMessageQuery = `
		INSERT INTO pending_messages (
			room_id, body, is_notice, as_user_id, send_after
		) VALUES (?, ?, ?, ?, ?)
	`

	UpdatePendingMessageSendAfterQuery = `
		UPDATE pending_messages
		SET send_after = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND send_after <= ?
	`

	SelectAllPendingMessagesQuery = `
		SELECT id, room_id, body, is_notice, as_user_id, send_after,
		       created_at, updated_at
		FROM pending_messages
	`

	CountPendingMessagesQuery = `
		SELECT COUNT(*) FROM pending_messages
	`

	DeletePendingMessageQuery = `
		DELETE FROM pending_messages WHERE id = ?
	`

	DeletePendingMessagesByRoomQuery = `
		DELETE FROM pending_messages WHERE room_id = ?
	`
)

// Receiver queries
const (
	InsertMessageReceiverQuery = `
		INSERT OR IGNORE INTO message_receivers (message_id, user_id)
		VALUES (?, ?)
	`

	SelectMessageReceiversQuery = `
		SELECT user_id FROM message_receivers WHERE message_id = ?
	`
)

// User and membership bookkeeping queries
const (
	InsertUserQuery = `
		INSERT OR IGNORE INTO users (user_id, is_managed) VALUES (?, ?)
	`

	InsertMembershipQuery = `
		INSERT OR IGNORE INTO memberships (room_id, user_id) VALUES (?, ?)
	`

	DeleteMembershipQuery = `
		DELETE FROM memberships WHERE room_id = ? AND user_id = ?
	`

	CountPresentMembersQuery = `
		SELECT COUNT(*) FROM memberships
		WHERE room_id = ? AND user_id IN (%s)
	`

	SelectRoomMembersQuery = `
		SELECT m.user_id, COALESCE(u.is_managed, 0)
		FROM memberships m
		LEFT JOIN users u ON u.user_id = m.user_id
		WHERE m.room_id = ?
	`

	SelectRoomsContainingMembersQuery = `
		SELECT room_id FROM memberships
		WHERE user_id IN (%s)
		GROUP BY room_id
		HAVING COUNT(DISTINCT user_id) = ?
		LIMIT ?
	`

	// The exact-size predicate has to run before LIMIT, otherwise superset
	// rooms can fill the result and hide an exact match.
	SelectRoomsWithExactMembersQuery = `
		SELECT room_id FROM memberships
		WHERE user_id IN (%s)
		GROUP BY room_id
		HAVING COUNT(DISTINCT user_id) = ?
		   AND (SELECT COUNT(*) FROM memberships m2
		        WHERE m2.room_id = memberships.room_id
		          AND m2.user_id != ?) = ?
		LIMIT ?
	`
)

// Mapping token queries
const (
	SelectMappingTokenForRoomQuery = `
		SELECT token FROM mapping_tokens WHERE user_id = ? AND room_id = ?
	`

	InsertNextMappingTokenQuery = `
		INSERT INTO mapping_tokens (token, user_id, room_id)
		SELECT COALESCE(MAX(token), 0) + 1, ?, ?
		FROM mapping_tokens WHERE user_id = ?
	`

	SelectMappingTokenRoomQuery = `
		SELECT room_id FROM mapping_tokens WHERE token = ? AND user_id = ?
	`
)
