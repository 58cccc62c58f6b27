package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/guregu/null/v6"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/models"
	"comove/internal/service/feed"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + Path
}

func TestHubBroadcastsSummaries(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyReport(models.ReportSummary{ID: "run-1", Primary: "GME", TopLabel: "XRT", Correlation: null.FloatFrom(-0.9)})

	var got models.ReportSummary
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "XRT", got.TopLabel)
	assert.InDelta(t, -0.9, got.Correlation.Float64, 1e-12)
	assert.False(t, got.Entropy.Valid)
}

func TestHubFiltersByPrimary(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?primary=gme,%20amc", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyReport(models.ReportSummary{ID: "run-skip", Primary: "SPY"})
	hub.NotifyReport(models.ReportSummary{ID: "run-keep", Primary: "AMC"})

	var got models.ReportSummary
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "run-keep", got.ID)
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyReport(models.ReportSummary{ID: "run-2"})
}

func TestFeedClientReceivesSummaries(t *testing.T) {
	hub, url := startHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c := feed.New(url, time.Second, time.Second, nil)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	sums, _ := c.Read(ctx)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyReport(models.ReportSummary{ID: "run-3", Primary: "GME"})
	select {
	case s := <-sums:
		assert.Equal(t, "run-3", s.ID)
	case <-ctx.Done():
		t.Fatal("no summary received")
	}
}
