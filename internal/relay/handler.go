package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ridetrack/internal/config"
	"ridetrack/pkg/logger"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHandler(hub *Hub, cfg *config.WebSocketConfig, log *logger.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	allowAll := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// HandleWebSocket upgrades the request and attaches the connection to
// the hub. Identity and authorization are the gateway's problem; the
// relay only routes.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn, uuid.NewString())
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// HandleChannels reports active ride channels and subscriber counts.
func (h *Handler) HandleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"channels": h.hub.Stats(),
	})
}
