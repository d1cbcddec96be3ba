package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"eduquiz-ledger/internal/app"
	"eduquiz-ledger/internal/domain"
)

// FeedHandler streams the ledger event feed over a websocket. Clients only
// listen; inbound messages are read solely to notice the close.
type FeedHandler struct {
	ledger   *app.Ledger
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewFeedHandler(ledger *app.Ledger, log *slog.Logger) *FeedHandler {
	return &FeedHandler{
		ledger: ledger,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and pumps feed events until the client leaves.
func (h *FeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.ledger.Subscribe()
	defer cancel()

	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(feedMessage{Type: "ledgerEvent", Payload: ev}); err != nil {
				h.log.Warn("ws write failed", "err", err)
				return
			}
		case <-readerGone:
			return
		}
	}
}

type feedMessage struct {
	Type    string           `json:"type"`
	Payload domain.FeedEvent `json:"payload"`
}
