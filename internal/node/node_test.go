package node

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/metrics"
	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
)

const waitFor = 5 * time.Second

type recordingClient struct {
	mu       sync.Mutex
	payloads []string
}

func (c *recordingClient) Receive(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, string(payload))
}

func (c *recordingClient) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

type testNode struct {
	*Node
	client *recordingClient
	url    string // ws base URL of the node's handler
}

// testServer is an httptest server whose handler is attached once its
// node exists, so that two nodes can name each other as peers.
type testServer struct {
	srv *httptest.Server

	mu sync.RWMutex
	h  http.Handler
}

func listen(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{}
	s.srv = httptest.NewServer(s)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	if h == nil {
		http.Error(w, "node not started", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

func (s *testServer) url() string { return "ws" + strings.TrimPrefix(s.srv.URL, "http") }

// runNode runs a node with cfg behind srv until the test ends. Links use
// host candidates only.
func runNode(t *testing.T, srv *testServer, cfg config.Node) *testNode {
	t.Helper()

	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 50 * time.Millisecond
	}
	if cfg.STUNServers == nil {
		cfg.STUNServers = []string{}
	}

	client := &recordingClient{}
	n, err := New(cfg, client)
	require.NoError(t, err)

	srv.mu.Lock()
	srv.h = n.Handler()
	srv.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	return &testNode{Node: n, client: client, url: srv.url()}
}

func startNode(t *testing.T, addr protocol.Address, peers ...config.Peer) *testNode {
	t.Helper()
	return runNode(t, listen(t), config.Node{Address: addr, Peers: peers})
}

func wsPeer(to *testNode) config.Peer {
	return config.Peer{Address: to.Address(), URL: to.url + "/link", Kind: config.KindWS}
}

func rtcPeer(to *testNode) config.Peer {
	return config.Peer{Address: to.Address(), URL: to.url + "/rtc", Kind: config.KindRTC}
}

func requireLinked(t *testing.T, n *testNode, peers ...protocol.Address) {
	t.Helper()
	requireLinkedWithin(t, waitFor, n, peers...)
}

func requireLinkedWithin(t *testing.T, d time.Duration, n *testNode, peers ...protocol.Address) {
	t.Helper()
	require.Eventually(t, func() bool {
		return slices.Equal(peers, n.Peers())
	}, d, 10*time.Millisecond, "host %s never linked to %v", n.Address(), peers)
}

func TestNodesExchangePayloads(t *testing.T) {
	a := startNode(t, 1)
	b := startNode(t, 2, wsPeer(a))
	requireLinked(t, a, 2)
	requireLinked(t, b, 1)

	ctx := context.Background()
	require.NoError(t, b.Send(ctx, 1, []byte("hello")))
	require.NoError(t, a.Send(ctx, 2, []byte("back")))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"hello"}, a.client.received()) &&
			assert.ObjectsAreEqual([]string{"back"}, b.client.received())
	}, waitFor, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics().Packets.WithLabelValues(metrics.OutcomeForwarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Packets.WithLabelValues(metrics.OutcomeForwarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Links))
}

func TestNodeForwardsAcrossLine(t *testing.T) {
	a := startNode(t, 1)
	c := startNode(t, 3)
	b := startNode(t, 2, wsPeer(a), wsPeer(c))
	requireLinked(t, b, 1, 3)
	requireLinked(t, a, 2)
	requireLinked(t, c, 2)

	require.NoError(t, c.Send(context.Background(), 1, []byte("far")))

	require.Eventually(t, func() bool {
		return len(a.client.received()) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"far"}, a.client.received())
	assert.Empty(t, c.client.received())
}

func TestNodeSendToSelf(t *testing.T) {
	a := startNode(t, 5)

	require.NoError(t, a.Send(context.Background(), 5, []byte("loopback")))
	assert.Equal(t, []string{"loopback"}, a.client.received())
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Packets.WithLabelValues(metrics.OutcomeDelivered)))
}

func TestNodeSendWithoutLinks(t *testing.T) {
	a := startNode(t, 5)

	err := a.Send(context.Background(), 6, []byte("lost"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrNoRoute))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Packets.WithLabelValues(metrics.OutcomeNoRoute)))
}

func TestNodeClosesLinkOnMalformedHeader(t *testing.T) {
	a := startNode(t, 1)

	conn, _, err := websocket.DefaultDialer.Dial(a.url+"/link", nil)
	require.NoError(t, err)
	defer conn.Close()

	peer, err := link.Handshake(conn, 9)
	require.NoError(t, err)
	require.Equal(t, protocol.Address(1), peer)
	requireLinked(t, a, 9)

	bad := protocol.EncodeHeader(-1, 9, 1)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, bad))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(a.Metrics().Packets.WithLabelValues(metrics.OutcomeMalformed)) == 1
	}, waitFor, 10*time.Millisecond)
	requireLinked(t, a)

	conn.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestNodeReassemblesSplitPackets(t *testing.T) {
	a := startNode(t, 1)

	conn, _, err := websocket.DefaultDialer.Dial(a.url+"/link", nil)
	require.NoError(t, err)
	defer conn.Close()
	_, err = link.Handshake(conn, 9)
	require.NoError(t, err)

	stream := append(protocol.CreatePacket(9, 1, []byte("one")), protocol.CreatePacket(9, 1, []byte("two"))...)
	for _, cut := range [][]byte{stream[:5], stream[5:17], stream[17:]} {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, cut))
	}

	require.Eventually(t, func() bool {
		return len(a.client.received()) == 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, a.client.received())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(config.Node{Address: 1, Peers: []config.Peer{{Address: 1, URL: "ws://h/link"}}}, &recordingClient{})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(config.Node{Address: 1}, nil)
	assert.Error(t, err)
}

func TestNodesExchangePayloadsOverRTC(t *testing.T) {
	const rtcWait = 20 * time.Second

	a := startNode(t, 1)
	b := startNode(t, 2, rtcPeer(a))
	requireLinkedWithin(t, rtcWait, b, 1)
	requireLinkedWithin(t, rtcWait, a, 2)

	for _, n := range []*testNode{a, b} {
		l, ok := n.table.Get(3 - n.Address())
		require.True(t, ok)
		assert.Equal(t, link.KindRTC, l.Kind())
	}

	big := bytes.Repeat([]byte("x"), 100*1024)
	ctx := context.Background()
	require.NoError(t, b.Send(ctx, 1, []byte("hello")))
	require.NoError(t, b.Send(ctx, 1, big))
	require.NoError(t, a.Send(ctx, 2, []byte("back")))

	require.Eventually(t, func() bool {
		return len(a.client.received()) == 2 && len(b.client.received()) == 1
	}, rtcWait, 10*time.Millisecond)
	assert.Equal(t, []string{"hello", string(big)}, a.client.received())
	assert.Equal(t, []string{"back"}, b.client.received())
}

func TestMutualPeersSettleOnOneLink(t *testing.T) {
	sa, sb := listen(t), listen(t)
	a := runNode(t, sa, config.Node{
		Address: 1,
		Peers:   []config.Peer{{Address: 2, URL: sb.url() + "/link", Kind: config.KindWS}},
	})
	b := runNode(t, sb, config.Node{
		Address: 2,
		Peers:   []config.Peer{{Address: 1, URL: sa.url() + "/link", Kind: config.KindWS}},
	})

	// Both ends keep the link dialed by the lower address.
	currentID := func(n *testNode, peer protocol.Address) string {
		l, ok := n.table.Get(peer)
		if !ok || !n.preferred(l) {
			return ""
		}
		return l.ID()
	}
	require.Eventually(t, func() bool {
		return currentID(a, 2) != "" && currentID(b, 1) != ""
	}, waitFor, 10*time.Millisecond)

	idA, idB := currentID(a, 2), currentID(b, 1)
	for range 40 {
		time.Sleep(25 * time.Millisecond)
		require.Equal(t, idA, currentID(a, 2), "host 1 replaced its link")
		require.Equal(t, idB, currentID(b, 1), "host 2 replaced its link")
	}

	ctx := context.Background()
	require.NoError(t, a.Send(ctx, 2, []byte("ping")))
	require.NoError(t, b.Send(ctx, 1, []byte("pong")))
	require.Eventually(t, func() bool {
		return len(a.client.received()) == 1 && len(b.client.received()) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Links))
}

func TestNodeReportsFullLinkAsLinkError(t *testing.T) {
	a := startNode(t, 1)
	stalled := link.NewMemory(7, func([]byte) error { return link.ErrSendBufferFull })
	require.True(t, a.register(stalled, 1))

	err := a.Send(context.Background(), 7, []byte("x"))
	assert.ErrorIs(t, err, link.ErrSendBufferFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Packets.WithLabelValues(metrics.OutcomeLinkError)))
}

func TestNodeIgnoresLateChunks(t *testing.T) {
	// Not running: handle is called directly, as the dispatch goroutine would.
	n, err := New(config.Node{Address: 1}, &recordingClient{})
	require.NoError(t, err)

	live := link.NewMemory(2, func([]byte) error { return nil })
	closed := link.NewMemory(3, func([]byte) error { return nil })
	closed.Close()

	n.handle(event{link: closed, chunk: []byte{1, 2, 3}})
	assert.Zero(t, testutil.ToFloat64(n.Metrics().BytesReceived))
	assert.Empty(t, n.buffers)

	n.handle(event{link: live, chunk: []byte{1, 2, 3}})
	assert.Equal(t, 3.0, testutil.ToFloat64(n.Metrics().BytesReceived))
	assert.Len(t, n.buffers, 1)
}
