package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"carbonledger/internal/logger"
	"carbonledger/internal/models"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	// subBuffer bounds the per-client queue; a stalled dashboard drops
	// feed messages rather than backpressuring the ledger.
	subBuffer = 16
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub fans confirmed transactions out to connected dashboard clients,
// scoped by company.
type wsHub struct {
	mu   sync.Mutex
	subs map[*wsSub]struct{}
	log  *logger.Logger
}

type wsSub struct {
	companyID string
	ch        chan models.CreditTransaction
}

func newWSHub(log *logger.Logger) *wsHub {
	return &wsHub{subs: make(map[*wsSub]struct{}), log: log}
}

// Broadcast delivers a confirmed transaction to the owning company's
// subscribers. Non-blocking: slow clients lose messages, never stall issuance.
func (hub *wsHub) Broadcast(tx models.CreditTransaction) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for sub := range hub.subs {
		if sub.companyID != tx.CompanyID {
			continue
		}
		select {
		case sub.ch <- tx:
		default:
			if hub.log != nil {
				hub.log.Debugw("ws_feed_dropped", "company", tx.CompanyID)
			}
		}
	}
}

func (hub *wsHub) subscribe(companyID string) *wsSub {
	sub := &wsSub{companyID: companyID, ch: make(chan models.CreditTransaction, subBuffer)}
	hub.mu.Lock()
	hub.subs[sub] = struct{}{}
	hub.mu.Unlock()
	return sub
}

func (hub *wsHub) unsubscribe(sub *wsSub) {
	hub.mu.Lock()
	delete(hub.subs, sub)
	hub.mu.Unlock()
}

// wsConnect upgrades the request and streams confirmed transactions for the
// authenticated company until the client disconnects.
func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := h.hub.subscribe(companyID(c))
	defer h.hub.unsubscribe(sub)

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// Initial frame: current balance, so dashboards render before the first
	// transaction arrives.
	if credit, err := h.services.Ledger.CompanyCredit(c.Request.Context(), companyID(c)); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(wsEnvelope{Type: "balance", Data: credit}); err != nil {
			if h.log != nil {
				h.log.Infow("ws_write_failed_initial", "err", err)
			}
			return
		}
	}

	// Writer/select loop.
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case tx := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsEnvelope{Type: "transaction", Data: tx}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}
