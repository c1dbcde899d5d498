package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridianxyz/fillbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// OfferHandler is called with the full offer document for offer_created and
// offer_updated events.
type OfferHandler func(domain.Offer)

// UpdateHandler is called for offer_cancelled and offer_filled events,
// which carry only the offer id and new lifecycle status.
type UpdateHandler func(OfferUpdate)

// WSClient is a WebSocket client for the relay's real-time offer feed. It
// manages the connection lifecycle, subscriptions, and dispatches events to
// registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []WSCommand

	// Handlers
	offerHandlers  []OfferHandler
	updateHandlers []UpdateHandler
	handlerMu      sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a WebSocket client for the given relay feed URL.
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay feed.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("relay/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("relay/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Start the read loop and ping loop.
	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("relay/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to the offers channel, optionally filtered to the
// given offer kinds. An empty kinds slice subscribes to all kinds.
func (w *WSClient) Subscribe(ctx context.Context, kinds []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("relay/ws: not connected")
	}

	cmd := WSCommand{
		Type:    "subscribe",
		Channel: "offers",
		Kinds:   normalizeKinds(kinds),
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("relay/ws: subscribe: %w", err)
	}

	// Track subscription for reconnection.
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// Unsubscribe drops the offers channel subscription for the given kinds.
func (w *WSClient) Unsubscribe(ctx context.Context, kinds []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("relay/ws: not connected")
	}

	kinds = normalizeKinds(kinds)
	cmd := WSCommand{
		Type:    "unsubscribe",
		Channel: "offers",
		Kinds:   kinds,
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("relay/ws: unsubscribe: %w", err)
	}

	// Remove matching kinds from tracked subscriptions.
	dropped := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		dropped[k] = struct{}{}
	}

	filtered := w.subscriptions[:0]
	for _, sub := range w.subscriptions {
		if len(kinds) == 0 {
			// Unfiltered unsubscribe drops everything on the channel.
			continue
		}
		remaining := make([]string, 0, len(sub.Kinds))
		for _, k := range sub.Kinds {
			if _, found := dropped[k]; !found {
				remaining = append(remaining, k)
			}
		}
		if len(remaining) > 0 {
			sub.Kinds = remaining
			filtered = append(filtered, sub)
		}
	}
	w.subscriptions = filtered

	return nil
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		// Send a close message to the server.
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnOffer registers a handler called for every offer_created and
// offer_updated event carrying a full offer document.
func (w *WSClient) OnOffer(handler OfferHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.offerHandlers = append(w.offerHandlers, handler)
}

// OnUpdate registers a handler called for offer_cancelled and offer_filled
// lifecycle events.
func (w *WSClient) OnUpdate(handler UpdateHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.updateHandlers = append(w.updateHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the WebSocket and dispatches
// them to the appropriate handlers. It runs in its own goroutine.
// On disconnect, it attempts to reconnect with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Check if we've been shut down.
			select {
			case <-w.done:
				return
			default:
			}

			// Attempt reconnection.
			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and routes it by event type. Frames that
// fail to parse are dropped; the feed is best-effort and the scraper
// backfills anything missed.
func (w *WSClient) handleMessage(raw []byte) {
	var event WSEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return
	}

	switch event.EventType {
	case "offer_created", "offer_updated":
		if event.Offer == nil {
			return
		}
		offer, err := event.Offer.ToDomain()
		if err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.offerHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(offer)
		}

	case "offer_cancelled", "offer_filled":
		if event.OfferID == "" {
			return
		}
		update := OfferUpdate{
			OfferID: event.OfferID,
			Status:  domain.ParseOfferStatus(event.Status),
			TxHash:  event.TxHash,
		}
		if event.EventType == "offer_cancelled" && event.Status == "" {
			update.Status = domain.OfferStatusCancelled
		}

		w.handlerMu.RLock()
		handlers := w.updateHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(update)
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		// Exponential backoff.
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
