package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	"FusionTrader/pkg/logger"
)

func snap(symbol string, conf float64) models.StatusSnapshot {
	return models.StatusSnapshot{
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		AIName:     "Seraph",
		Status:     "Thinking",
		Symbol:     symbol,
		Action:     models.ActionHold,
		Confidence: conf,
	}
}

func TestStatusHubKeepsLatestPerSymbol(t *testing.T) {
	h := NewStatusHub(logger.NewNop(), nil)
	ctx := context.Background()
	require.NoError(t, h.Publish(ctx, snap("GBPUSD", 0.1)))
	require.NoError(t, h.Publish(ctx, snap("EURUSD", 0.2)))
	require.NoError(t, h.Publish(ctx, snap("EURUSD", 0.3)))

	got := h.Latest()
	require.Len(t, got, 2)
	assert.Equal(t, "EURUSD", got[0].Symbol)
	assert.Equal(t, 0.3, got[0].Confidence)
	assert.Equal(t, "GBPUSD", got[1].Symbol)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnap(t *testing.T, conn *websocket.Conn) models.StatusSnapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var s models.StatusSnapshot
	require.NoError(t, json.Unmarshal(b, &s))
	return s
}

func TestStatusHubStreamsSnapshots(t *testing.T) {
	h := NewStatusHub(logger.NewNop(), nil)
	require.NoError(t, h.Publish(context.Background(), snap("EURUSD", 0.2)))

	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dial(t, srv)
	assert.Equal(t, "EURUSD", readSnap(t, conn).Symbol)

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.Publish(context.Background(), snap("GBPUSD", -0.4)))
	live := readSnap(t, conn)
	assert.Equal(t, "GBPUSD", live.Symbol)
	assert.Equal(t, -0.4, live.Confidence)
}

func TestStatusHubCloseDisconnectsClients(t *testing.T) {
	h := NewStatusHub(logger.NewNop(), nil)
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Close())
	assert.Zero(t, h.Clients())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestStatusHubChecksOrigin(t *testing.T) {
	h := NewStatusHub(logger.NewNop(), []string{"https://dash.local/"})
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.local"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Nil(t, conn)

	conn, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://dash.local"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/status", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(req("https://anything.local")))

	star := originChecker([]string{"*"})
	assert.True(t, star(req("https://anything.local")))

	listed := originChecker([]string{"https://dash.local"})
	assert.True(t, listed(req("https://dash.local")))
	assert.False(t, listed(req("https://evil.local")))
	assert.True(t, listed(req("")), "non-browser clients send no origin")
}
