package api

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"eegprep/domain/core"
	"eegprep/domain/stage"
)

// allRuns is the subscription key for clients that want every run.
const allRuns = ""

type eventClient struct {
	runID   string
	channel chan stage.StageEvent
}

// EventHub fans stage events out to Server-Sent Events clients, keyed by
// run ID. It implements ports.StageObserverPort.
type EventHub struct {
	clients    map[string]map[chan stage.StageEvent]bool
	clientsMu  sync.RWMutex
	register   chan eventClient
	unregister chan eventClient
	broadcast  chan stage.StageEvent
	done       chan struct{}
}

// NewEventHub creates a hub and starts its dispatch loop.
func NewEventHub() *EventHub {
	hub := &EventHub{
		clients:    make(map[string]map[chan stage.StageEvent]bool),
		register:   make(chan eventClient, 10),
		unregister: make(chan eventClient, 10),
		broadcast:  make(chan stage.StageEvent, 100),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

// Close stops the dispatch loop.
func (h *EventHub) Close() { close(h.done) }

func (h *EventHub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.runID] == nil {
				h.clients[client.runID] = make(map[chan stage.StageEvent]bool)
			}
			h.clients[client.runID][client.channel] = true
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, ok := h.clients[client.runID]; ok {
				delete(clients, client.channel)
				if len(clients) == 0 {
					delete(h.clients, client.runID)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for _, key := range []string{string(event.RunID), allRuns} {
				for ch := range h.clients[key] {
					select {
					case ch <- event:
					default:
						log.Printf("[SSE] Client channel full for run %s, skipping %s", event.RunID, event.Stage)
					}
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// StageFinished queues ev for delivery and never blocks.
func (h *EventHub) StageFinished(ev stage.StageEvent) {
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("[SSE] Broadcast channel full, dropping %s event", ev.Stage)
	}
}

// Subscribe returns a channel of events for runID, or for every run when
// runID is empty, and a function that ends the subscription.
func (h *EventHub) Subscribe(runID string) (<-chan stage.StageEvent, func()) {
	client := eventClient{runID: runID, channel: make(chan stage.StageEvent, 16)}
	h.register <- client
	return client.channel, func() { h.unregister <- client }
}

// ClientCount returns the number of subscribers for runID.
func (h *EventHub) ClientCount(runID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[runID])
}

// handleEvents streams stage events. ?run_id= narrows to one run.
func (h *EventHub) handleEvents(c *gin.Context) {
	runID := c.Query("run_id")
	if runID != allRuns {
		if _, err := core.ParseRunID(runID); err != nil {
			badRequest(c, err)
			return
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events, cancel := h.Subscribe(runID)
	defer cancel()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			body, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[SSE] Failed to marshal event: %v", err)
				return true
			}
			c.SSEvent("stage", string(body))
			return true
		case <-time.After(30 * time.Second):
			c.SSEvent("ping", `{"timestamp":"`+time.Now().UTC().Format(time.RFC3339)+`"}`)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
