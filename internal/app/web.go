// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/orientation"
)

const (
	wsSendBuffer   = 8
	wsWriteTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from the device itself
	},
}

// Hub keeps the latest state for the HTTP API and pushes every new state
// to the connected WebSocket clients. It is a display sink.
type Hub struct {
	mu      sync.RWMutex
	last    orientation.State
	have    bool
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan orientation.State
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Show records s and queues it for every client. A client that is not
// keeping up misses states rather than blocking the pipeline.
func (h *Hub) Show(s orientation.State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = s
	h.have = true
	for c := range h.clients {
		select {
		case c.send <- s:
		default:
		}
	}
	return nil
}

// Latest returns the last state shown, if any.
func (h *Hub) Latest() (orientation.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeOrientation answers /api/orientation with the latest state as JSON,
// or 503 until the first state arrives.
func (h *Hub) ServeOrientation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// ServeWS upgrades the request and streams states to the client until it
// disconnects. The latest state, if any, is sent first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan orientation.State, wsSendBuffer)}
	h.mu.Lock()
	if h.have {
		c.send <- h.last
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for s := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteJSON(s); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// NewWebHandler routes the API, the WebSocket feed, metrics and the static
// UI. A nil metrics handler uses the default Prometheus registry.
func NewWebHandler(hub *Hub, staticDir string, metrics http.Handler) http.Handler {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orientation", hub.ServeOrientation)
	mux.HandleFunc("/ws/orientation", hub.ServeWS)
	mux.Handle("/metrics", metrics)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// serveHTTP runs srv until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web: server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("web: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RunWeb serves the web UI for a compass running elsewhere: it follows the
// retained orientation topic on the MQTT broker.
func RunWeb() error {
	cfg := config.Get()
	ctx, stop := signalContext()
	defer stop()

	hub := NewHub()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("web: mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeOrientation(client, cfg.TopicOrientation, hub); err != nil {
		return err
	}
	log.Printf("web: subscribed to %s", cfg.TopicOrientation)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: NewWebHandler(hub, cfg.WebStaticDir, nil),
	}
	return serveHTTP(ctx, srv)
}
