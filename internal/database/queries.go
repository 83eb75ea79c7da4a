package database

// Conversation queries
const (
	SelectConversationByPhoneQuery = `
		SELECT id, phone_number, contact_name, last_message_at, is_active,
			   template_required, created_at, updated_at
		FROM conversations
		WHERE phone_number = ?
	`

	SelectConversationIDByPhoneQuery = `
		SELECT id FROM conversations WHERE phone_number = ?
	`

	// Inbound traffic reopens the service window: template_required is
	// cleared and a non-empty profile name replaces the stored one.
	UpsertInboundConversationQuery = `
		INSERT INTO conversations (
			phone_number, contact_name, last_message_at, is_active,
			template_required, created_at, updated_at
		) VALUES (?, ?, ?, 1, 0, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			contact_name = CASE WHEN excluded.contact_name <> '' THEN excluded.contact_name ELSE conversations.contact_name END,
			last_message_at = excluded.last_message_at,
			is_active = 1,
			template_required = 0,
			updated_at = excluded.updated_at
	`

	// Outbound traffic never touches template_required on an existing row.
	UpsertOutboundConversationQuery = `
		INSERT INTO conversations (
			phone_number, contact_name, last_message_at, is_active,
			template_required, created_at, updated_at
		) VALUES (?, '', ?, 1, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			last_message_at = excluded.last_message_at,
			is_active = 1,
			updated_at = excluded.updated_at
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			message_id, conversation_id, direction, type, content,
			template_name, timestamp, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectMessageExistsQuery = `
		SELECT COUNT(*) FROM messages WHERE message_id = ?
	`

	SelectMessageByIDQuery = `
		SELECT id, message_id, conversation_id, direction, type, content,
			   template_name, timestamp, status, created_at
		FROM messages
		WHERE message_id = ?
	`

	SelectLastMessageTimeQuery = `
		SELECT timestamp FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	UpdateMessageStatusQuery = `
		UPDATE messages SET status = ? WHERE message_id = ?
	`

	SelectRecentMessagesQuery = `
		SELECT m.id, m.message_id, m.conversation_id, m.direction, m.type, m.content,
			   m.template_name, m.timestamp, m.status, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.phone_number = ?
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?
	`
)

// Maintenance queries
const (
	DeactivateStaleConversationsQuery = `
		UPDATE conversations SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND last_message_at < ?
	`

	CountStaleOutboundQuery = `
		SELECT COUNT(*) FROM messages
		WHERE direction = 'OUTBOUND' AND status = 'SENT' AND timestamp < ?
	`
)
