package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	manager := NewManager(zerolog.Nop())
	go manager.Run(ctx)

	srv := httptest.NewServer(NewHandler(manager).SetupRoutes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return manager, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestTopicFromVars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind, id string
		want     string
		wantErr  bool
	}{
		{kind: "auctions", id: "1", want: "auction:1"},
		{kind: "products", id: "7", want: "product:7"},
		{kind: "brands", id: "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5", want: "brand:ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"},
		{kind: "auctions", id: "abc", wantErr: true},
		{kind: "items", id: "1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.id, func(t *testing.T) {
			got, err := topicFromVars(map[string]string{"kind": tt.kind, "id": tt.id})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBroadcastReachesTopicSubscribers(t *testing.T) {
	t.Parallel()

	manager, srv := startServer(t)

	watcher := dial(t, srv, "/ws/auctions/1")
	other := dial(t, srv, "/ws/auctions/2")

	welcome := readJSON(t, watcher)
	require.Equal(t, "connected", welcome["type"])
	require.Equal(t, "auction:1", welcome["topic"])
	require.Equal(t, "auction:2", readJSON(t, other)["topic"])

	require.Eventually(t, func() bool {
		return manager.GetSubscriberCount("auction:1") == 1 && manager.GetSubscriberCount("auction:2") == 1
	}, 5*time.Second, 10*time.Millisecond)

	manager.Broadcast("auction:1", []byte(`{"kind":"auction.bid_placed","auction_id":1}`))

	msg := readJSON(t, watcher)
	require.Equal(t, "auction.bid_placed", msg["kind"])

	// The other topic sees nothing.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	manager, srv := startServer(t)

	conn := dial(t, srv, "/ws/products/3")
	readJSON(t, conn)
	require.Eventually(t, func() bool { return manager.GetSubscriberCount("product:3") == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return manager.GetSubscriberCount("product:3") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHandlerRejectsUnknownTopics(t *testing.T) {
	t.Parallel()

	_, srv := startServer(t)

	resp, err := http.Get(srv.URL + "/ws/items/1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats/auctions/1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
