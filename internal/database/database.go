package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"wagateway/internal/migrations"
	"wagateway/internal/models"
	"wagateway/internal/security"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateMessage reports that a message id was already recorded.
var ErrDuplicateMessage = models.ErrDuplicateMessage

// Options tunes the SQLite connection and at-rest encryption.
type Options struct {
	BusyTimeoutMs    int
	MaxRetryAttempts int
	EnableEncryption bool
	EncryptionSecret string
}

// OptionsFromConfig maps the database section of the config to Options.
func OptionsFromConfig(c models.DatabaseConfig) Options {
	return Options{
		BusyTimeoutMs:    c.BusyTimeoutMs,
		MaxRetryAttempts: c.MaxRetryAttempts,
		EnableEncryption: c.EnableEncryption,
		EncryptionSecret: c.EncryptionSecret,
	}
}

// Database is the SQLite-backed conversation store.
type Database struct {
	db            *sql.DB
	encryptor     *encryptor
	retryAttempts int
	now           func() time.Time
}

func New(dbPath string, opts Options) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	enc, err := newEncryptor(opts.EnableEncryption, opts.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(dbPath, opts.BusyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to ping database: %w", err))
	}

	if _, err := migrations.Apply(context.Background(), db); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &Database{
		db:            db,
		encryptor:     enc,
		retryAttempts: opts.MaxRetryAttempts,
		now:           time.Now,
	}, nil
}

func dsn(path string, busyTimeoutMs int) string {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate", path, busyTimeoutMs)
}

func closeOnError(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// GetConversation returns the conversation for phoneNumber, or nil when the
// contact has never been seen.
func (d *Database) GetConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	var conv models.Conversation
	var encryptedName string

	err := d.db.QueryRowContext(ctx, SelectConversationByPhoneQuery, phoneNumber).Scan(
		&conv.ID,
		&conv.PhoneNumber,
		&encryptedName,
		&conv.LastMessageAt,
		&conv.IsActive,
		&conv.TemplateRequired,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.ContactName, err = d.encryptor.Decrypt(encryptedName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt contact name: %w", err)
	}
	return &conv, nil
}

// LastMessageTime returns the timestamp of the most recent message in the
// conversation. ok is false when the conversation has no messages.
func (d *Database) LastMessageTime(ctx context.Context, conversationID int64) (last time.Time, ok bool, err error) {
	err = d.db.QueryRowContext(ctx, SelectLastMessageTimeQuery, conversationID).Scan(&last)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last message time: %w", err)
	}
	return last, true, nil
}

// MessageExists reports whether a message with the provider id is stored.
func (d *Database) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, SelectMessageExistsQuery, messageID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	return count > 0, nil
}

// RecordInbound upserts the sender's conversation and appends the message in
// one transaction. A message id that is already stored yields
// ErrDuplicateMessage and leaves the conversation untouched.
func (d *Database) RecordInbound(ctx context.Context, rec models.InboundRecord) (*models.Conversation, error) {
	name, err := d.encryptor.Encrypt(rec.ContactName)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt contact name: %w", err)
	}
	content, err := d.encryptor.Encrypt(rec.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt content: %w", err)
	}

	timestamp := rec.Timestamp.UTC()
	var convID int64
	err = retryableDBOperationNoReturn(ctx, d.retryAttempts, func() error {
		return d.withTx(ctx, func(tx *sql.Tx) error {
			if err := checkDuplicate(ctx, tx, rec.MessageID); err != nil {
				return err
			}

			now := d.now().UTC()
			if _, err := tx.ExecContext(ctx, UpsertInboundConversationQuery,
				rec.PhoneNumber, name, timestamp, now, now); err != nil {
				return fmt.Errorf("failed to upsert conversation: %w", err)
			}
			if err := tx.QueryRowContext(ctx, SelectConversationIDByPhoneQuery, rec.PhoneNumber).Scan(&convID); err != nil {
				return fmt.Errorf("failed to resolve conversation: %w", err)
			}

			return insertMessage(ctx, tx, &models.Message{
				MessageID:      rec.MessageID,
				ConversationID: convID,
				Direction:      models.DirectionInbound,
				Type:           rec.Type,
				Content:        content,
				Timestamp:      timestamp,
				Status:         models.DeliveryStatusDelivered,
				CreatedAt:      now,
			})
		})
	}, "record inbound message")
	if err != nil {
		return nil, err
	}

	return d.GetConversation(ctx, rec.PhoneNumber)
}

// RecordOutbound upserts the recipient's conversation and appends the sent
// message in one transaction.
func (d *Database) RecordOutbound(ctx context.Context, rec models.OutboundRecord) (*models.Conversation, error) {
	content, err := d.encryptor.Encrypt(rec.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt content: %w", err)
	}

	timestamp := rec.Timestamp.UTC()
	// A contact first reached by template has not opened a window yet
	templateRequired := rec.Type == models.MessageTypeTemplate

	err = retryableDBOperationNoReturn(ctx, d.retryAttempts, func() error {
		return d.withTx(ctx, func(tx *sql.Tx) error {
			now := d.now().UTC()
			if _, err := tx.ExecContext(ctx, UpsertOutboundConversationQuery,
				rec.PhoneNumber, timestamp, templateRequired, now, now); err != nil {
				return fmt.Errorf("failed to upsert conversation: %w", err)
			}
			var convID int64
			if err := tx.QueryRowContext(ctx, SelectConversationIDByPhoneQuery, rec.PhoneNumber).Scan(&convID); err != nil {
				return fmt.Errorf("failed to resolve conversation: %w", err)
			}

			msg := &models.Message{
				MessageID:      rec.MessageID,
				ConversationID: convID,
				Direction:      models.DirectionOutbound,
				Type:           rec.Type,
				Content:        content,
				TemplateName:   rec.TemplateName,
				Timestamp:      timestamp,
				Status:         models.DeliveryStatusSent,
				CreatedAt:      now,
			}
			return insertMessage(ctx, tx, msg)
		})
	}, "record outbound message")
	if err != nil {
		return nil, err
	}

	return d.GetConversation(ctx, rec.PhoneNumber)
}

// UpdateMessageStatus applies a delivery receipt. It reports false when the
// message id is unknown.
func (d *Database) UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus) (bool, error) {
	var affected int64
	err := retryableDBOperationNoReturn(ctx, d.retryAttempts, func() error {
		result, err := d.db.ExecContext(ctx, UpdateMessageStatusQuery, status, messageID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	}, "update message status")
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}
	return affected > 0, nil
}

// GetMessage returns the stored message with the provider id, or nil.
func (d *Database) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	row := d.db.QueryRowContext(ctx, SelectMessageByIDQuery, messageID)
	msg, err := d.scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit messages for a contact, newest first.
func (d *Database) RecentMessages(ctx context.Context, phoneNumber string, limit int) ([]*models.Message, error) {
	rows, err := d.db.QueryContext(ctx, SelectRecentMessagesQuery, phoneNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeactivateStaleConversations marks conversations idle since before cutoff
// as inactive and returns how many changed.
func (d *Database) DeactivateStaleConversations(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := retryableDBOperationNoReturn(ctx, d.retryAttempts, func() error {
		result, err := d.db.ExecContext(ctx, DeactivateStaleConversationsQuery, d.now().UTC(), cutoff.UTC())
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	}, "deactivate stale conversations")
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate conversations: %w", err)
	}
	return affected, nil
}

// StaleOutboundCount returns how many outbound messages sent before cutoff
// never received a delivery receipt.
func (d *Database) StaleOutboundCount(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, CountStaleOutboundQuery, cutoff.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stale outbound messages: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var content string
	var templateName sql.NullString

	if err := row.Scan(
		&msg.ID,
		&msg.MessageID,
		&msg.ConversationID,
		&msg.Direction,
		&msg.Type,
		&content,
		&templateName,
		&msg.Timestamp,
		&msg.Status,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	plain, err := d.encryptor.Decrypt(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	msg.Content = plain
	msg.TemplateName = templateName.String
	return &msg, nil
}

func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func checkDuplicate(ctx context.Context, tx *sql.Tx, messageID string) error {
	var count int
	if err := tx.QueryRowContext(ctx, SelectMessageExistsQuery, messageID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check duplicate: %w", err)
	}
	if count > 0 {
		return ErrDuplicateMessage
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *models.Message) error {
	var templateName interface{}
	if msg.TemplateName != "" {
		templateName = msg.TemplateName
	}

	_, err := tx.ExecContext(ctx, InsertMessageQuery,
		msg.MessageID,
		msg.ConversationID,
		msg.Direction,
		msg.Type,
		msg.Content,
		templateName,
		msg.Timestamp,
		msg.Status,
		msg.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateMessage
	}
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
