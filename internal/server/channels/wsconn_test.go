package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/casanet/remote-server/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeWS(t *testing.T) {
	h := newHarness(t)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.relay.ServeWS(context.Background(), conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	readType := func() protocol.RemoteMessageType {
		t.Helper()
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		typ, _, err := protocol.ParseRemote(data)
		require.NoError(t, err)
		return typ
	}

	assert.Equal(t, protocol.RemoteReadyToInitialization, readType())

	init, err := protocol.EncodeLocal(&protocol.Initialization{
		MacAddress:    testMAC,
		RemoteAuthKey: testKey,
		Platform:      "linux",
		Version:       "4.0.0",
		LocalIP:       "192.168.1.10",
	})
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, init))
	assert.Equal(t, protocol.RemoteAuthenticatedSuccessfully, readType())
	assert.True(t, h.relay.Status(testMAC))

	ack, err := protocol.EncodeLocal(&protocol.Ack{})
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, ack))
	assert.Equal(t, protocol.RemoteAckOk, readType())

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return !h.relay.Status(testMAC) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{testMAC}, h.servers.Disconnections())
}

func TestWSConn_SendAfterClose(t *testing.T) {
	c := &WSConn{send: make(chan []byte, 1), done: make(chan struct{})}
	close(c.done)

	assert.ErrorIs(t, c.Send([]byte("x")), ErrConnClosed)
}
