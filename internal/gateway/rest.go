package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReplyTimeout bounds how long a REST caller waits for the next reply.
const DefaultReplyTimeout = 90 * time.Second

// RESTAdapter implements Adapter for HTTP-based message ingestion. Each
// request waits for the conversation's next reply.
type RESTAdapter struct {
	handler      MessageHandler
	channels     map[string]chan *OutboundMessage // channelID -> pending responses
	replyTimeout time.Duration
	mu           sync.RWMutex
	logger       *zap.Logger
}

// NewRESTAdapter creates a REST gateway adapter.
func NewRESTAdapter(logger *zap.Logger) *RESTAdapter {
	return &RESTAdapter{
		channels:     make(map[string]chan *OutboundMessage),
		replyTimeout: DefaultReplyTimeout,
		logger:       logger,
	}
}

// SetReplyTimeout changes how long HandleMessage waits for a reply.
func (a *RESTAdapter) SetReplyTimeout(d time.Duration) {
	if d > 0 {
		a.replyTimeout = d
	}
}

func (a *RESTAdapter) Platform() string { return "rest" }

func (a *RESTAdapter) Connect(_ context.Context) error { return nil }

func (a *RESTAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *RESTAdapter) Close() error { return nil }

// Send delivers a message to a waiting REST channel.
func (a *RESTAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	a.mu.RLock()
	ch, ok := a.channels[msg.ChannelID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no active channel: %s", msg.ChannelID)
	}
	select {
	case ch <- msg:
		return nil
	default:
		return fmt.Errorf("channel %s buffer full", msg.ChannelID)
	}
}

// HandleMessage accepts an inbound message via HTTP and waits for the reply.
func (a *RESTAdapter) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		UserName string `json:"user_name"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}
	if a.handler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not running"})
		return
	}

	channelID := uuid.New().String()
	ch := make(chan *OutboundMessage, 1)

	a.mu.Lock()
	a.channels[channelID] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.channels, channelID)
		a.mu.Unlock()
	}()

	a.handler(&InboundMessage{
		Platform:  "rest",
		ChannelID: channelID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Content:   req.Content,
		Timestamp: time.Now(),
	})

	timer := time.NewTimer(a.replyTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		writeJSON(w, http.StatusOK, msg)
	case <-timer.C:
		a.logger.Warn("rest reply timed out", zap.String("channel", channelID))
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "response timeout"})
	case <-r.Context().Done():
		return
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
