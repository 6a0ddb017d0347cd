package realtime

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait            = 10 * time.Second
	DefaultStockInterval = 5 * time.Second

	messageSubscribeStock = "SUBSCRIBE_STOCK"
)

type clientMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type StockQuote struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Authenticator resolves the user behind a websocket request. Zero means anonymous.
type Authenticator func(r *http.Request) int64

type Handler struct {
	hub           *Hub
	authenticate  Authenticator
	stockInterval time.Duration
	upgrader      websocket.Upgrader
}

// NewHandler accepts browser upgrades only from allowedOrigins. With none given
// the Origin host must match the request host. Clients that send no Origin
// header are not browsers and are let through.
func NewHandler(hub *Hub, authenticate Authenticator, stockInterval time.Duration, allowedOrigins ...string) *Handler {
	if authenticate == nil {
		authenticate = func(*http.Request) int64 { return 0 }
	}
	if stockInterval <= 0 {
		stockInterval = DefaultStockInterval
	}
	h := &Handler{
		hub:           hub,
		authenticate:  authenticate,
		stockInterval: stockInterval,
	}
	if origins := normalizeOrigins(allowedOrigins); len(origins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[normalizeOrigin(origin)]
			return ok
		}
	}
	return h
}

func normalizeOrigins(raw []string) map[string]struct{} {
	origins := make(map[string]struct{}, len(raw))
	for _, o := range raw {
		if n := normalizeOrigin(o); n != "" {
			origins[n] = struct{}{}
		}
	}
	return origins
}

// normalizeOrigin reduces a URL to scheme://host, the form browsers send.
func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := h.authenticate(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	sub := h.hub.Subscribe(userID)
	defer h.hub.Unsubscribe(sub)

	slog.Info("websocket connected", "subscriber_id", sub.ID, "user_id", userID)

	commands := make(chan clientMessage, 1)
	stopChan := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	// read loop: client commands and disconnects
	go func() {
		defer close(stopChan)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Info("websocket message ignored", "subscriber_id", sub.ID, "err", err)
				continue
			}
			select {
			case commands <- msg:
			case <-done:
				return
			}
		}
	}()

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
		symbol string
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	// write loop: the only goroutine writing to conn
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				slog.Info("websocket write failed", "subscriber_id", sub.ID, "err", err)
				return
			}
		case msg := <-commands:
			if msg.Type != messageSubscribeStock || msg.Symbol == "" {
				continue
			}
			symbol = msg.Symbol
			if ticker == nil {
				ticker = time.NewTicker(h.stockInterval)
				tick = ticker.C
			}
			slog.Info("stock subscription", "subscriber_id", sub.ID, "symbol", symbol)
		case now := <-tick:
			e := Event{
				Type:   EventStockUpdate,
				Symbol: symbol,
				Data:   StockQuote{Price: rand.Float64()*100 + 100, Timestamp: now.UTC()},
			}
			if err := writeEvent(conn, e); err != nil {
				slog.Info("websocket write failed", "subscriber_id", sub.ID, "err", err)
				return
			}
		case <-stopChan:
			slog.Info("websocket disconnected", "subscriber_id", sub.ID)
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
