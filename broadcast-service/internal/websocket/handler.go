package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development (use proper CORS in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// topic kinds addressable over /ws/{kind}/{id}
var topicKinds = map[string]string{
	"auctions": "auction",
	"products": "product",
	"brands":   "brand",
}

// Handler handles WebSocket connections
type Handler struct {
	manager *Manager
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager: manager,
	}
}

// SetupRoutes configures WebSocket routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// WebSocket endpoint: /ws/auctions/1, /ws/products/1, /ws/brands/{owner}
	router.HandleFunc("/ws/{kind}/{id}", h.HandleWebSocket)

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	// Stats endpoint
	router.HandleFunc("/stats/{kind}/{id}", h.GetStats).Methods(http.MethodGet)

	return router
}

// topicFromVars maps route variables to a fan-out topic such as "auction:1".
func topicFromVars(vars map[string]string) (string, error) {
	kind, ok := topicKinds[vars["kind"]]
	if !ok {
		return "", fmt.Errorf("unknown topic kind %q", vars["kind"])
	}
	id := vars["id"]
	if id == "" {
		return "", fmt.Errorf("id is required")
	}
	if kind != "brand" {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return "", fmt.Errorf("invalid %s id %q", kind, id)
		}
	}
	return kind + ":" + id, nil
}

// HandleWebSocket upgrades HTTP connection to WebSocket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	topic, err := topicFromVars(mux.Vars(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.manager.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := &Client{
		ID:    uuid.New().String(),
		Topic: topic,
		Conn:  conn,
		Send:  make(chan []byte, 256), // Buffered channel for non-blocking sends
	}

	// Queue the welcome message before the client becomes visible to broadcasts.
	welcome, _ := json.Marshal(map[string]string{
		"type":     "connected",
		"topic":    topic,
		"clientId": client.ID,
	})
	client.Send <- welcome

	if !h.manager.RegisterClient(client) {
		_ = conn.Close()
		return
	}
	go client.readPump(h.manager)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "broadcast-service",
	})
}

// GetStats returns the subscriber count of a topic
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	topic, err := topicFromVars(mux.Vars(r))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"topic":       topic,
		"subscribers": h.manager.GetSubscriberCount(topic),
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
