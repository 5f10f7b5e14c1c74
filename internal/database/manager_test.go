package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	dbconfig "campushub/pkg/database"
	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := dbconfig.DefaultConfig(filepath.Join(t.TempDir(), "campushub_test.db"))
	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Errorf("failed to close manager: %v", err)
		}
	})

	return manager
}

func seedUser(t *testing.T, m *Manager, id, role string) *types.Identity {
	t.Helper()

	user := &types.Identity{ID: id, Username: id, Role: role, Active: true}
	if err := m.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return user
}

func TestManager_SchemaApplied(t *testing.T) {
	manager := newTestManager(t)

	validator := dbconfig.NewSchemaValidator(manager.GetDB())
	if err := validator.ValidateTablesExist(); err != nil {
		t.Errorf("expected tables to exist: %v", err)
	}
	if err := validator.ValidateIndexes(); err != nil {
		t.Errorf("expected indexes to exist: %v", err)
	}
}

func TestManager_UserRoundtrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	seedUser(t, manager, "alice", types.RoleStudent)

	user, err := manager.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if user.ID != "alice" || user.Role != types.RoleStudent || !user.Active {
		t.Errorf("unexpected user: %+v", user)
	}

	if _, err := manager.GetUser(ctx, "nobody"); err != interfaces.ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	err = manager.CreateUser(ctx, &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent})
	if err != interfaces.ErrUserExists {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestManager_MessageRoundtrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	seedUser(t, manager, "alice", types.RoleStudent)
	seedUser(t, manager, "teacher1", types.RoleTeacher)

	msg := &types.DirectMessage{
		ID:         uuid.New().String(),
		SenderID:   "alice",
		ReceiverID: "teacher1",
		Body:       "question about homework",
		CreatedAt:  time.Now().UTC(),
	}
	if err := manager.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("failed to create message: %v", err)
	}

	withFile := &types.DirectMessage{
		ID:         uuid.New().String(),
		SenderID:   "teacher1",
		ReceiverID: "alice",
		CreatedAt:  time.Now().UTC().Add(time.Second),
		Attachment: &types.Attachment{
			URL:      "/files/notes.pdf",
			Name:     "notes.pdf",
			MimeType: "application/pdf",
			Size:     2048,
		},
	}
	if err := manager.CreateMessage(ctx, withFile); err != nil {
		t.Fatalf("failed to create message with attachment: %v", err)
	}

	conversation, err := manager.ListConversation(ctx, "alice", "teacher1")
	if err != nil {
		t.Fatalf("failed to list conversation: %v", err)
	}
	if len(conversation) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conversation))
	}
	if conversation[0].ID != msg.ID {
		t.Errorf("expected chronological order, got %s first", conversation[0].ID)
	}
	if conversation[1].Attachment == nil || conversation[1].Attachment.Name != "notes.pdf" {
		t.Errorf("expected attachment metadata, got %+v", conversation[1].Attachment)
	}

	count, err := manager.CountUnread(ctx, "teacher1")
	if err != nil {
		t.Fatalf("failed to count unread: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 unread message for teacher1, got %d", count)
	}

	if err := manager.MarkConversationRead(ctx, "teacher1", "alice"); err != nil {
		t.Fatalf("failed to mark conversation read: %v", err)
	}

	count, err = manager.CountUnread(ctx, "teacher1")
	if err != nil {
		t.Fatalf("failed to count unread: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread after marking read, got %d", count)
	}

	unread, err := manager.ListUnreadMessages(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to list unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != withFile.ID {
		t.Errorf("expected alice's unread message with attachment, got %+v", unread)
	}
}

func TestManager_ListContacts(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	seedUser(t, manager, "alice", types.RoleStudent)
	seedUser(t, manager, "bob", types.RoleStudent)
	seedUser(t, manager, "teacher1", types.RoleTeacher)
	seedUser(t, manager, "admin1", types.RoleAdmin)

	// Inactive users never appear as contacts.
	err := manager.CreateUser(ctx, &types.Identity{
		ID: "ghost", Username: "ghost", Role: types.RoleTeacher, Active: false,
	})
	if err != nil {
		t.Fatalf("failed to create inactive user: %v", err)
	}

	msg := &types.DirectMessage{
		ID:         uuid.New().String(),
		SenderID:   "teacher1",
		ReceiverID: "alice",
		Body:       "reminder",
		CreatedAt:  time.Now().UTC(),
	}
	if err := manager.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("failed to create message: %v", err)
	}

	contacts, err := manager.ListContacts(ctx, "alice", []string{types.RoleTeacher, types.RoleAdmin})
	if err != nil {
		t.Fatalf("failed to list contacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	for _, contact := range contacts {
		switch contact.ID {
		case "teacher1":
			if contact.UnreadCount != 1 {
				t.Errorf("expected 1 unread from teacher1, got %d", contact.UnreadCount)
			}
		case "admin1":
			if contact.UnreadCount != 0 {
				t.Errorf("expected 0 unread from admin1, got %d", contact.UnreadCount)
			}
		default:
			t.Errorf("unexpected contact %s", contact.ID)
		}
	}
}

func TestManager_NotificationRoundtrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	seedUser(t, manager, "admin1", types.RoleAdmin)
	seedUser(t, manager, "alice", types.RoleStudent)

	global := &types.Notification{
		ID:        uuid.New().String(),
		Title:     "Maintenance",
		Body:      "Platform down tonight",
		CreatedBy: "admin1",
		CreatedAt: time.Now().UTC(),
	}
	if err := manager.CreateNotification(ctx, global); err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}

	teacherRole := types.RoleTeacher
	targeted := &types.Notification{
		ID:         uuid.New().String(),
		Title:      "Grading deadline",
		Body:       "Submit grades by Friday",
		CreatedBy:  "admin1",
		TargetRole: &teacherRole,
		CreatedAt:  time.Now().UTC().Add(time.Second),
	}
	if err := manager.CreateNotification(ctx, targeted); err != nil {
		t.Fatalf("failed to create targeted notification: %v", err)
	}

	got, err := manager.GetNotification(ctx, targeted.ID)
	if err != nil {
		t.Fatalf("failed to get notification: %v", err)
	}
	if got.TargetRole == nil || *got.TargetRole != types.RoleTeacher {
		t.Errorf("expected teacher target role, got %+v", got.TargetRole)
	}

	if _, err := manager.GetNotification(ctx, "missing"); err != interfaces.ErrNotificationNotFound {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}

	// Students see only the global notification.
	visible, err := manager.ListNotifications(ctx, "alice", types.RoleStudent)
	if err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != global.ID {
		t.Fatalf("expected only the global notification for students, got %d", len(visible))
	}
	if visible[0].Read {
		t.Error("expected notification unread before receipt")
	}
}

func TestManager_ReceiptIdempotent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	seedUser(t, manager, "admin1", types.RoleAdmin)
	seedUser(t, manager, "alice", types.RoleStudent)

	n := &types.Notification{
		ID:        uuid.New().String(),
		Title:     "Welcome",
		Body:      "Term starts Monday",
		CreatedBy: "admin1",
		CreatedAt: time.Now().UTC(),
	}
	if err := manager.CreateNotification(ctx, n); err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}

	// Both calls must succeed; only one receipt row may exist.
	if err := manager.CreateReceipt(ctx, n.ID, "alice"); err != nil {
		t.Fatalf("first receipt failed: %v", err)
	}
	if err := manager.CreateReceipt(ctx, n.ID, "alice"); err != nil {
		t.Fatalf("duplicate receipt must be a no-op success, got %v", err)
	}

	var count int
	err := manager.GetDB().QueryRow(
		"SELECT COUNT(*) FROM notification_reads WHERE notification_id = ? AND user_id = ?",
		n.ID, "alice").Scan(&count)
	if err != nil {
		t.Fatalf("failed to count receipts: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 receipt, got %d", count)
	}

	status, err := manager.ListNotifications(ctx, "alice", types.RoleStudent)
	if err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(status) != 1 || !status[0].Read {
		t.Errorf("expected notification marked read, got %+v", status)
	}

	unread, err := manager.ListUnreadNotifications(ctx, "alice", types.RoleStudent)
	if err != nil {
		t.Fatalf("failed to list unread notifications: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("expected no unread notifications, got %d", len(unread))
	}
}
