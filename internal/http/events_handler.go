package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/notify"
)

const heartbeatInterval = 15 * time.Second

// EventsHandler streams catalog change events to browsers as Server-Sent
// Events.
type EventsHandler struct {
	hub       *notify.Hub
	heartbeat time.Duration
	log       *logger.Logger
}

func NewEventsHandler(hub *notify.Hub, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		hub:       hub,
		heartbeat: heartbeatInterval,
		log:       log.With("component", "EventsHandler"),
	}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	// Subscribe before the headers go out so a client that saw the response
	// start cannot miss an event.
	client := h.hub.Subscribe()
	defer h.hub.Unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("SSE client disconnected", "clientID", client.ID)
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-client.Outbound:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				h.log.Warn("failed to marshal event", "event", ev.Type, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()
		}
	}
}
