package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	dbconfig "campushub/pkg/database"
	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

// Manager implements the UserStore and MessageStore interfaces over
// SQLite. Reads run concurrently on the connection pool; writes are
// funneled through a single goroutine so they never contend on the
// SQLite write lock.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

const writeTimeout = 30 * time.Second

// NewManager opens the database, applies pragmas and migrations, and
// starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Warn().Err(err).Msg("database write failed, retrying once")
				err = op.operation(m.db)
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for its result.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.New("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(writeTimeout):
		return errors.New("write operation timeout")
	case <-m.shutdown:
		return errors.New("store is shutting down")
	}
}

// GetUser returns the identity for id, or interfaces.ErrUserNotFound.
func (m *Manager) GetUser(ctx context.Context, id string) (*types.Identity, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, username, name, role, active FROM users WHERE id = ?`, id)

	var user types.Identity
	var name sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &name, &user.Role, &user.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.Name = name.String

	return &user, nil
}

// CreateUser registers a new identity.
func (m *Manager) CreateUser(ctx context.Context, user *types.Identity) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, username, name, role, active) VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.Username, nullString(user.Name), user.Role, user.Active)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrUserExists
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// ListContacts returns the active users of the given roles, excluding
// the viewer, each with the viewer's unread count from that contact.
func (m *Manager) ListContacts(ctx context.Context, viewerID string, roles []string) ([]*types.Contact, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(roles)-1) + "?"
	query := fmt.Sprintf(`
		SELECT u.id, u.username, u.name, u.role,
			(SELECT COUNT(*) FROM messages msg
				WHERE msg.sender_id = u.id AND msg.receiver_id = ? AND msg.is_read = 0)
		FROM users u
		WHERE u.id != ? AND u.active = 1 AND u.role IN (%s)
		ORDER BY u.role ASC, u.username ASC`, placeholders)

	args := []interface{}{viewerID, viewerID}
	for _, role := range roles {
		args = append(args, role)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []*types.Contact
	for rows.Next() {
		var contact types.Contact
		var name sql.NullString
		if err := rows.Scan(&contact.ID, &contact.Username, &name, &contact.Role, &contact.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contact.Name = name.String
		contact.Active = true
		contacts = append(contacts, &contact)
	}

	return contacts, rows.Err()
}

// CreateMessage persists a direct message with its attachment metadata.
func (m *Manager) CreateMessage(ctx context.Context, msg *types.DirectMessage) error {
	return m.executeWrite(func(db *sql.DB) error {
		var fileURL, fileName, fileType sql.NullString
		var fileSize sql.NullInt64
		if msg.Attachment != nil {
			fileURL = sql.NullString{String: msg.Attachment.URL, Valid: true}
			fileName = sql.NullString{String: msg.Attachment.Name, Valid: true}
			fileType = sql.NullString{String: msg.Attachment.MimeType, Valid: true}
			fileSize = sql.NullInt64{Int64: msg.Attachment.Size, Valid: true}
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, sender_id, receiver_id, body, file_url, file_name, file_type, file_size, is_read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.SenderID, msg.ReceiverID, msg.Body,
			fileURL, fileName, fileType, fileSize, msg.Read, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

const messageColumns = `id, sender_id, receiver_id, body, file_url, file_name, file_type, file_size, is_read, created_at`

// ListConversation returns both directions between user and peer,
// oldest first.
func (m *Manager) ListConversation(ctx context.Context, userID, peerID string) ([]*types.DirectMessage, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC`,
		userID, peerID, peerID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

// ListUnreadMessages returns the receiver's unread messages, oldest first.
func (m *Manager) ListUnreadMessages(ctx context.Context, receiverID string) ([]*types.DirectMessage, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE receiver_id = ? AND is_read = 0
		ORDER BY created_at ASC, id ASC`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

// MarkConversationRead marks every unread message from sender to
// receiver as read.
func (m *Manager) MarkConversationRead(ctx context.Context, receiverID, senderID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE messages SET is_read = 1
			WHERE sender_id = ? AND receiver_id = ? AND is_read = 0`,
			senderID, receiverID)
		if err != nil {
			return fmt.Errorf("failed to mark conversation read: %w", err)
		}
		return nil
	})
}

// CountUnread returns the receiver's total unread message count.
func (m *Manager) CountUnread(ctx context.Context, receiverID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`,
		receiverID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// CreateNotification persists a notification.
func (m *Manager) CreateNotification(ctx context.Context, n *types.Notification) error {
	return m.executeWrite(func(db *sql.DB) error {
		var targetRole sql.NullString
		if n.TargetRole != nil {
			targetRole = sql.NullString{String: *n.TargetRole, Valid: true}
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO notifications (id, title, body, created_by, target_role, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.Title, n.Body, n.CreatedBy, targetRole, n.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		return nil
	})
}

// GetNotification returns one notification, or ErrNotificationNotFound.
func (m *Manager) GetNotification(ctx context.Context, id string) (*types.Notification, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, title, body, created_by, target_role, created_at
		FROM notifications WHERE id = ?`, id)

	n, err := scanNotification(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to query notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns the notifications visible to a user, newest
// first, with the user's read status.
func (m *Manager) ListNotifications(ctx context.Context, userID, role string) ([]*types.NotificationStatus, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.body, n.created_by, n.target_role, n.created_at,
			EXISTS(SELECT 1 FROM notification_reads r
				WHERE r.notification_id = n.id AND r.user_id = ?)
		FROM notifications n
		WHERE n.target_role IS NULL OR n.target_role = ?
		ORDER BY n.created_at DESC, n.id DESC`, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*types.NotificationStatus
	for rows.Next() {
		var status types.NotificationStatus
		var targetRole sql.NullString
		err := rows.Scan(&status.ID, &status.Title, &status.Body, &status.CreatedBy,
			&targetRole, &status.CreatedAt, &status.Read)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		if targetRole.Valid {
			status.TargetRole = &targetRole.String
		}
		result = append(result, &status)
	}

	return result, rows.Err()
}

// ListUnreadNotifications returns the visible notifications the user
// has no receipt for, oldest first.
func (m *Manager) ListUnreadNotifications(ctx context.Context, userID, role string) ([]*types.Notification, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.body, n.created_by, n.target_role, n.created_at
		FROM notifications n
		WHERE (n.target_role IS NULL OR n.target_role = ?)
			AND NOT EXISTS(SELECT 1 FROM notification_reads r
				WHERE r.notification_id = n.id AND r.user_id = ?)
		ORDER BY n.created_at ASC, n.id ASC`, role, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*types.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		result = append(result, n)
	}

	return result, rows.Err()
}

// CreateReceipt records that a user read a notification. The receipt
// table's primary key makes duplicates a silent no-op, so concurrent
// retries never fail and never create a second row.
func (m *Manager) CreateReceipt(ctx context.Context, notificationID, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO notification_reads (notification_id, user_id) VALUES (?, ?)`,
			notificationID, userID)
		if err != nil {
			return fmt.Errorf("failed to insert receipt: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB exposes the underlying connection for schema validation.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close drains the write loop and closes the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*types.DirectMessage, error) {
	var messages []*types.DirectMessage
	for rows.Next() {
		var msg types.DirectMessage
		var fileURL, fileName, fileType sql.NullString
		var fileSize sql.NullInt64

		err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body,
			&fileURL, &fileName, &fileType, &fileSize, &msg.Read, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		if fileURL.Valid {
			msg.Attachment = &types.Attachment{
				URL:      fileURL.String,
				Name:     fileName.String,
				MimeType: fileType.String,
				Size:     fileSize.Int64,
			}
		}

		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func scanNotification(scan func(...interface{}) error) (*types.Notification, error) {
	var n types.Notification
	var targetRole sql.NullString
	err := scan(&n.ID, &n.Title, &n.Body, &n.CreatedBy, &targetRole, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if targetRole.Valid {
		n.TargetRole = &targetRole.String
	}
	return &n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
