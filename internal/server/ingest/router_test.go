package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/server/registry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memStore struct {
	mu    sync.Mutex
	items map[model.ID]*model.Notification
	fail  int
}

func (s *memStore) Insert(_ context.Context, n *model.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return false, errors.New("disk full")
	}
	if s.items == nil {
		s.items = map[model.ID]*model.Notification{}
	}
	if n.ID == "" {
		n.ID = model.ID(watermill.NewUUID())
	}
	if _, ok := s.items[n.ID]; ok {
		return false, nil
	}
	s.items[n.ID] = n
	return true, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func startRouter(t *testing.T, store Store, hub registry.Hubber) Dispatcher {
	t.Helper()

	wlogger := watermill.NewSlogLogger(discard)
	bus, err := NewBus("", wlogger)
	require.NoError(t, err)

	router, err := NewRouter(bus, NewHandler(store, hub, discard), discard, wlogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()
	<-router.Running()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})
	return NewDispatcher(bus.Publisher, discard)
}

func TestIngest_PersistsAndPushes(t *testing.T) {
	hub := registry.NewHub(discard)
	defer hub.Shutdown()
	conn := hub.Subscribe(context.Background(), "u1", 4)

	store := &memStore{}
	d := startRouter(t, store, hub)

	require.NoError(t, d.Dispatch(context.Background(), &model.Notification{ID: "n1", UserID: "u1", Message: "hi"}))

	select {
	case p := <-conn.Recv():
		assert.Equal(t, model.ID("n1"), p.Notification.ID)
		assert.Equal(t, "hi", p.Notification.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not pushed")
	}
	assert.Equal(t, 1, store.len())
}

func TestIngest_OfflineUserOnlyPersisted(t *testing.T) {
	hub := registry.NewHub(discard)
	defer hub.Shutdown()

	store := &memStore{}
	d := startRouter(t, store, hub)

	require.NoError(t, d.Dispatch(context.Background(), &model.Notification{UserID: "u9", Message: "later"}))
	require.Eventually(t, func() bool { return store.len() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestIngest_StoreFailureRetried(t *testing.T) {
	hub := registry.NewHub(discard)
	defer hub.Shutdown()

	store := &memStore{fail: 2}
	d := startRouter(t, store, hub)

	require.NoError(t, d.Dispatch(context.Background(), &model.Notification{ID: "n1", UserID: "u1"}))
	require.Eventually(t, func() bool { return store.len() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestDispatcher_RejectsMissingRecipient(t *testing.T) {
	d := NewDispatcher(nil, discard)
	assert.Error(t, d.Dispatch(context.Background(), &model.Notification{ID: "1"}))
	assert.Error(t, d.Dispatch(context.Background(), nil))
}

func TestHandler_AcksUndecodable(t *testing.T) {
	h := NewHandler(&memStore{}, registry.NewHub(discard), discard)
	assert.NoError(t, h.Handle(message.NewMessage("1", []byte("{not json"))))
	assert.NoError(t, h.Handle(message.NewMessage("2", []byte(`{"message":"no recipient"}`))))
}
