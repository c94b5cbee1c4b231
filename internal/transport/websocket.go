// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"vizpipe/internal/analysis"
	"vizpipe/internal/log"
	"vizpipe/internal/plugin"
	"vizpipe/pkg/json"

	"github.com/gorilla/websocket"
)

const (
	// wsSlots is the number of frames that can wait for encoding; Render
	// drops frames while all of them are taken.
	wsSlots   = 4
	writeWait = 250 * time.Millisecond
)

// WebSocketTransport is a visualization plugin that streams each frame as
// JSON to every connected browser on /ws.
type WebSocketTransport struct {
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	clients     map[*websocket.Conn]struct{}
	clientsMu   sync.Mutex
	clientCount atomic.Int32

	bands atomic.Pointer[[]analysis.Band]

	slots []*Snapshot
	free  chan int
	ready chan int
	raw   chan []byte

	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a transport for spectra of bins values.
// Nothing listens until Start.
func NewWebSocketTransport(addr string, bins int) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // renderers are served from anywhere
			},
		},
		clients: make(map[*websocket.Conn]struct{}),
		slots:   make([]*Snapshot, wsSlots),
		free:    make(chan int, wsSlots),
		ready:   make(chan int, wsSlots),
		raw:     make(chan []byte, 16),
		done:    make(chan struct{}),
	}

	bands := analysis.DefaultBands
	wst.bands.Store(&bands)
	for i := range wst.slots {
		wst.slots[i] = NewSnapshot(bins, len(bands))
		wst.free <- i
	}

	return wst
}

// Start listens on the configured address and begins broadcasting.
func (wst *WebSocketTransport) Start() error {
	listener, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", wst.addr, err)
	}
	wst.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		log.Infof("WebSocket: Serving frames on ws://%s/ws", listener.Addr())
		if err := wst.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocket: Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()

	return nil
}

// Addr returns the listening address, or the configured one before Start.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	return int(wst.clientCount.Load())
}

// Dropped returns the number of frames dropped because the broadcaster was busy.
func (wst *WebSocketTransport) Dropped() uint64 {
	return wst.dropped.Load()
}

// Render copies the frame into a free slot for the broadcaster. It does not
// block and skips the copy entirely when nobody is connected.
func (wst *WebSocketTransport) Render(frame analysis.Frame) {
	if wst.clientCount.Load() == 0 {
		return
	}
	select {
	case slot := <-wst.free:
		wst.slots[slot].Capture(frame, *wst.bands.Load())
		wst.ready <- slot
	default:
		wst.dropped.Add(1)
	}
}

// Configure accepts "bands" ([]analysis.Band) to change the band layout.
func (wst *WebSocketTransport) Configure(key string, value any) {
	switch key {
	case "bands":
		bands, ok := value.([]analysis.Band)
		if !ok {
			log.Warnf("WebSocket: bands must be []analysis.Band, got %T", value)
			return
		}
		wst.bands.Store(&bands)
	default:
		log.Warnf("WebSocket: Unknown configuration key %q", key)
	}
}

// Send queues a raw payload for every client, dropping it when the queue
// is full.
func (wst *WebSocketTransport) Send(data []byte) error {
	select {
	case wst.raw <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientCount.Store(int32(total))
	wst.clientsMu.Unlock()
	log.Infof("WebSocket: Client connected from %s, total: %d", r.RemoteAddr, total)

	// Clients never send data; reading only detects the disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.removeClient(conn)
	}()
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientCount.Store(int32(total))
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		log.Infof("WebSocket: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts encodes queued snapshots and writes them to all clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()

	stream := json.JSON.BorrowStream(nil)
	defer json.JSON.ReturnStream(stream)

	for {
		select {
		case <-wst.done:
			return
		case slot := <-wst.ready:
			stream.Reset(nil)
			stream.WriteVal(wst.slots[slot])
			wst.free <- slot
			if stream.Error != nil {
				log.Errorf("WebSocket: Encode error: %v", stream.Error)
				stream.Error = nil
				continue
			}
			wst.broadcast(stream.Buffer())
		case data := <-wst.raw:
			wst.broadcast(data)
		}
	}
}

func (wst *WebSocketTransport) broadcast(data []byte) {
	wst.clientsMu.Lock()
	var failed []*websocket.Conn
	for client := range wst.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debugf("WebSocket: Error sending to client: %v", err)
			failed = append(failed, client)
		}
	}
	wst.clientsMu.Unlock()

	for _, client := range failed {
		wst.removeClient(client)
	}
}

// Close shuts down the server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Infof("WebSocket: Closing server")
		close(wst.done)

		if wst.server != nil {
			err = wst.server.Close()
		}

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientCount.Store(0)
		wst.clientsMu.Unlock()

		wst.wg.Wait()
	})
	return err
}

var (
	_ Transport     = (*WebSocketTransport)(nil)
	_ plugin.Plugin = (*WebSocketTransport)(nil)
)
