package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SneHope/TVH-NotiZAR/internal/alert"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(slog.Default(), observability.NewMetricsForTesting())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.Clients()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_BroadcastBanner(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	a := domain.Alert{Type: domain.AlertTypeNewReport, Priority: domain.PriorityHigh, Report: domain.AlertReport{ID: "r1"}}
	require.NoError(t, hub.Broadcast(context.Background(), a))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeBanner, msg.Type)
	var got domain.Alert
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, "r1", got.Report.ID)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
}

func TestHub_NoClients(t *testing.T) {
	hub, _ := startHub(t)

	assert.NoError(t, hub.Broadcast(context.Background(), domain.Alert{}))
	assert.NoError(t, hub.Notify(context.Background(), alert.Notification{}))
	assert.ErrorIs(t, hub.Play(context.Background(), "chime"), alert.ErrAudioBlocked)
	assert.ErrorIs(t, hub.RequestPermission(context.Background()), ErrNoClients)
	assert.Equal(t, alert.PermissionDefault, hub.Permission())
}

func TestHub_PermissionFlow(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, hub.RequestPermission(context.Background()))
	assert.Equal(t, TypeRequestPermission, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePermission, Value: "granted"}))
	require.Eventually(t, func() bool { return hub.Permission() == alert.PermissionGranted }, time.Second, 5*time.Millisecond)

	n := alert.Notification{Title: "New high report: Incident", Body: "b", Tag: "report-r1"}
	require.NoError(t, hub.Notify(context.Background(), n))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeNotification, msg.Type)
	var got alert.Notification
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, n, got)
}

func TestHub_PermissionDeniedByAll(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePermission, Value: "denied"}))
	require.Eventually(t, func() bool { return hub.Permission() == alert.PermissionDenied }, time.Second, 5*time.Millisecond)

	dial(t, hub, url)
	assert.Equal(t, alert.PermissionDefault, hub.Permission())
}

func TestHub_SoundNeedsInteraction(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	assert.ErrorIs(t, hub.Play(context.Background(), "siren"), alert.ErrAudioBlocked)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeInteraction}))
	require.Eventually(t, func() bool {
		return hub.Play(context.Background(), "siren") == nil
	}, time.Second, 5*time.Millisecond)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSound, msg.Type)
	assert.JSONEq(t, `{"sound":"siren"}`, string(msg.Payload))
}

func TestHub_PublishUpdate(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	hub.PublishUpdate(domain.AdminUpdate{ID: "u1", ReportID: "r1", Message: "On site"})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeAdminUpdate, msg.Type)
	var got domain.AdminUpdate
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, "u1", got.ID)
}

func TestHub_Disconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
