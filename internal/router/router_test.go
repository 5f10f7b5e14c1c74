package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"campushub/internal/chat"
	"campushub/internal/notification"
	"campushub/internal/presence"
	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

// memStore backs both store interfaces with just enough behavior for
// routing; unimplemented calls panic through the embedded nils.
type memStore struct {
	interfaces.UserStore
	interfaces.MessageStore

	mu            sync.Mutex
	users         map[string]*types.Identity
	messages      []*types.DirectMessage
	notifications []*types.Notification
}

func (m *memStore) GetUser(_ context.Context, id string) (*types.Identity, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return user, nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *types.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) CreateNotification(_ context.Context, n *types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

type recorderSession struct {
	id       string
	identity *types.Identity

	mu     sync.Mutex
	events []*types.ServerEvent
}

func (r *recorderSession) ID() string                { return r.id }
func (r *recorderSession) Identity() *types.Identity { return r.identity }

func (r *recorderSession) Send(event *types.ServerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorderSession) received() []*types.ServerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.ServerEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newTestRouter() (*Router, *memStore, *presence.Table) {
	store := &memStore{users: map[string]*types.Identity{
		"alice":    {ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true},
		"teacher1": {ID: "teacher1", Username: "teacher1", Role: types.RoleTeacher, Active: true},
		"admin1":   {ID: "admin1", Username: "admin1", Role: types.RoleAdmin, Active: true},
	}}
	table := presence.NewTable()
	chatSvc := chat.NewService(store, store, table)
	notifSvc := notification.NewService(store, store, table)
	return New(table, chatSvc, notifSvc), store, table
}

func connect(t *testing.T, table *presence.Table, sessionID, userID, role string) *recorderSession {
	t.Helper()
	s := &recorderSession{id: sessionID, identity: &types.Identity{
		ID: userID, Username: userID, Role: role, Active: true,
	}}
	if err := table.Register(s); err != nil {
		t.Fatalf("failed to register session: %v", err)
	}
	return s
}

func clientEvent(t *testing.T, typ types.EventType, payload interface{}) *types.ClientEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return &types.ClientEvent{Type: typ, Payload: raw}
}

func TestRouter_TypingStampsOrigin(t *testing.T) {
	r, _, table := newTestRouter()
	receiver := connect(t, table, "sess-1", "teacher1", types.RoleTeacher)
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}

	// A client-supplied sender id must be overwritten server-side.
	ev := clientEvent(t, types.EventTyping, &types.TypingPayload{
		ReceiverID: "teacher1", SenderID: "admin1", Username: "admin1",
	})
	if err := r.Route(context.Background(), origin, ev); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	events := receiver.received()
	if len(events) != 1 {
		t.Fatalf("expected 1 event at receiver, got %d", len(events))
	}
	p := events[0].Payload.(*types.TypingPayload)
	if p.SenderID != "alice" || p.Username != "alice" {
		t.Errorf("origin not stamped server-side: %+v", p)
	}
}

func TestRouter_DeliveryAckFlowsToOriginalSender(t *testing.T) {
	r, _, table := newTestRouter()
	sender := connect(t, table, "sess-1", "alice", types.RoleStudent)
	origin := &types.Identity{ID: "teacher1", Username: "teacher1", Role: types.RoleTeacher, Active: true}

	ev := clientEvent(t, types.EventDeliveryAck, &types.DeliveryAckPayload{
		SenderID: "alice", MessageID: "msg-1",
	})
	if err := r.Route(context.Background(), origin, ev); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	events := sender.received()
	if len(events) != 1 {
		t.Fatalf("expected ack at original sender, got %d events", len(events))
	}
	p := events[0].Payload.(*types.DeliveryAckPayload)
	if p.AckedBy != "teacher1" || p.MessageID != "msg-1" {
		t.Errorf("unexpected ack payload: %+v", p)
	}
}

func TestRouter_UploadProgressIsEphemeral(t *testing.T) {
	r, store, table := newTestRouter()
	receiver := connect(t, table, "sess-1", "teacher1", types.RoleTeacher)
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}

	ev := clientEvent(t, types.EventUploadProgress, &types.UploadProgressPayload{
		ReceiverID: "teacher1", FileName: "essay.pdf", Percent: 40,
	})
	if err := r.Route(context.Background(), origin, ev); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(receiver.received()) != 1 {
		t.Fatalf("expected progress event at receiver")
	}
	if len(store.messages) != 0 {
		t.Error("ephemeral signals must not touch the store")
	}
}

func TestRouter_DirectMessagePersistsThenPushes(t *testing.T) {
	r, store, table := newTestRouter()
	receiver := connect(t, table, "sess-1", "teacher1", types.RoleTeacher)
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}

	ev := clientEvent(t, types.EventDirectMessage, &types.DirectMessagePayload{
		ReceiverID: "teacher1", Body: "question about homework",
	})
	if err := r.Route(context.Background(), origin, ev); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(store.messages) != 1 {
		t.Fatalf("expected message persisted, got %d", len(store.messages))
	}
	events := receiver.received()
	if len(events) != 1 || events[0].Type != types.EventDirectMessage {
		t.Fatalf("expected pushed direct message, got %v", events)
	}
}

func TestRouter_NotificationRequiresAdmin(t *testing.T) {
	r, store, _ := newTestRouter()
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}

	ev := clientEvent(t, types.EventNotification, &types.NotificationPayload{Title: "t", Body: "b"})
	if err := r.Route(context.Background(), origin, ev); err != ErrForbidden {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if len(store.notifications) != 0 {
		t.Error("rejected notification must not persist")
	}
}

func TestRouter_AdminNotificationBroadcast(t *testing.T) {
	r, store, table := newTestRouter()
	student := connect(t, table, "sess-1", "alice", types.RoleStudent)
	teacher := connect(t, table, "sess-2", "teacher1", types.RoleTeacher)
	origin := &types.Identity{ID: "admin1", Username: "admin1", Role: types.RoleAdmin, Active: true}

	ev := clientEvent(t, types.EventNotification, &types.NotificationPayload{Title: "Maintenance", Body: "Tonight"})
	if err := r.Route(context.Background(), origin, ev); err != nil {
		t.Fatalf("route failed: %v", err)
	}

	if len(store.notifications) != 1 {
		t.Fatalf("expected notification persisted, got %d", len(store.notifications))
	}
	if len(student.received()) != 1 || len(teacher.received()) != 1 {
		t.Error("untargeted notification must reach every role")
	}
}

func TestRouter_UnknownEventRejected(t *testing.T) {
	r, _, _ := newTestRouter()
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}

	ev := &types.ClientEvent{Type: "shutdown_server", Payload: json.RawMessage(`{}`)}
	if err := r.Route(context.Background(), origin, ev); err != types.ErrUnknownEvent {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestRouter_MalformedAndIncompletePayloads(t *testing.T) {
	r, _, _ := newTestRouter()
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}
	ctx := context.Background()

	ev := &types.ClientEvent{Type: types.EventTyping, Payload: json.RawMessage(`not json`)}
	if err := r.Route(ctx, origin, ev); err != ErrMalformedPayload {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	ev = clientEvent(t, types.EventTyping, &types.TypingPayload{})
	if err := r.Route(ctx, origin, ev); err != ErrMissingReceiver {
		t.Errorf("expected ErrMissingReceiver, got %v", err)
	}

	ev = clientEvent(t, types.EventDeliveryAck, &types.DeliveryAckPayload{MessageID: "m"})
	if err := r.Route(ctx, origin, ev); err != ErrMissingSender {
		t.Errorf("expected ErrMissingSender, got %v", err)
	}
}

func TestRateLimiter_WindowAndRecovery(t *testing.T) {
	rl := NewRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("request %d within limit was rejected", i)
		}
	}
	if rl.Allow("alice") {
		t.Error("expected rejection above limit")
	}
	if !rl.Allow("bob") {
		t.Error("limits must be tracked per user")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Error("expected fresh window after expiry")
	}
}

func TestRouter_RateLimitSurfacesToSender(t *testing.T) {
	r, _, _ := newTestRouter()
	r.limiter = NewRateLimiter(1, time.Minute)
	origin := &types.Identity{ID: "alice", Username: "alice", Role: types.RoleStudent, Active: true}

	ev := clientEvent(t, types.EventTyping, &types.TypingPayload{ReceiverID: "teacher1"})
	if err := r.Route(context.Background(), origin, ev); err != nil {
		t.Fatalf("first event should pass: %v", err)
	}
	if err := r.Route(context.Background(), origin, ev); err != ErrRateLimitExceeded {
		t.Errorf("expected ErrRateLimitExceeded, got %v", err)
	}
}
