package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RiskGate/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubFiltersByUser(t *testing.T) {
	hub := NewHub(time.Minute, time.Second, 8, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	all := dial(t, srv, "")
	u1 := dial(t, srv, "user_id=u1")
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.PublishStage(ctx, models.StageEvent{TransactionID: "t2", UserID: "u2", Stage: models.StageInitiated}))
	require.NoError(t, hub.PublishStage(ctx, models.StageEvent{TransactionID: "t1", UserID: "u1", Stage: models.StageCompleted}))

	var ev models.StageEvent
	_ = u1.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, u1.ReadJSON(&ev))
	assert.Equal(t, "t1", ev.TransactionID)
	assert.Equal(t, models.StageCompleted, ev.Stage)

	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, "t2", ev.TransactionID)
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, "t1", ev.TransactionID)
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub(time.Minute, time.Second, 8, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "transaction_id=t1")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, hub.PublishStage(context.Background(), models.StageEvent{TransactionID: "t1"}))
	hub.Close()
}
