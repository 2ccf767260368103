package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/notifications"
)

func dial(t *testing.T, m *Manager) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := m.HandleConnection(w, r, "alice")
		if err != nil {
			t.Logf("upgrade failed: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) notifications.WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg notifications.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestManagerStreamsSubscribedCredits(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	defer m.Close()

	conn := dial(t, m)
	hello := readMessage(t, conn)
	assert.Equal(t, notifications.WSMessageTypeStatus, hello.Type)
	assert.Equal(t, "connected", hello.Data["status"])

	require.NoError(t, conn.WriteJSON(notifications.WebSocketMessage{
		Type: notifications.WSMessageTypeSubscribe,
		Data: map[string]interface{}{"credit_ids": []interface{}{7}},
	}))
	ack := readMessage(t, conn)
	assert.Equal(t, "subscribed", ack.Data["status"])

	other := notifications.NewEvent(notifications.EventListingCreated)
	other.CreditID = 8
	wanted := notifications.NewEvent(notifications.EventListingCreated)
	wanted.CreditID = 7

	ctx := context.Background()
	require.NoError(t, m.Deliver(ctx, other))
	require.NoError(t, m.Deliver(ctx, wanted))

	msg := readMessage(t, conn)
	assert.Equal(t, notifications.WSMessageTypeEvent, msg.Type)
	assert.Equal(t, wanted.ID.String(), msg.Data["id"])
	assert.Equal(t, float64(7), msg.Data["credit_id"])
}

func TestManagerWithoutSubscriptionReceivesEverything(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	defer m.Close()

	conn := dial(t, m)
	readMessage(t, conn)

	event := notifications.NewEvent(notifications.EventCreditMinted)
	event.CreditID = 99
	require.NoError(t, m.Deliver(context.Background(), event))

	msg := readMessage(t, conn)
	assert.Equal(t, "credit.minted", msg.Data["kind"])
	assert.Equal(t, 1, m.GetConnectionCount())
}

func TestManagerDeliverAfterCloseIsNoop(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	m.Close()
	m.Close()

	assert.NoError(t, m.Deliver(context.Background(), notifications.NewEvent(notifications.EventCreditMinted)))
}

func TestParseCreditIDs(t *testing.T) {
	ids := parseCreditIDs([]interface{}{float64(3), "5", "bad", float64(-1), 0.0})
	assert.Equal(t, []uint64{3, 5}, ids)
	assert.Nil(t, parseCreditIDs("not a list"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://market.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://market.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
