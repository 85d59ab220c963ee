// Package realtime pushes check-lifecycle events to connected dashboard
// clients over a websocket, so countdowns and listing views update without
// polling.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/pkg/models"
)

// DeadlineFunc supplies the current next-check deadline, sent to every new
// connection so its countdown is correct before the next full cycle.
type DeadlineFunc func() time.Time

// Hub fans events out to all connected clients. A single goroutine owns the
// client set; registration, unregistration and broadcast all go through its
// channels.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	deadline DeadlineFunc
}

// NewHub creates a Hub. Run must be called before clients connect.
func NewHub(deadline DeadlineFunc) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		deadline:   deadline,
	}
}

// Run processes hub events until Close is called.
func (h *Hub) Run() {
	clients := make(map[*client]bool)
	for {
		select {
		case c := <-h.register:
			clients[c] = true
			log.Debug().Int("clients", len(clients)).Msg("Realtime client connected")

			// Immediate resync so the client's countdown is right.
			if h.deadline != nil {
				if msg, err := marshalEvent(models.EventNextCheck, models.NextCheckPayload{
					NextCheck: h.deadline().UnixMilli(),
				}); err == nil {
					c.trySend(msg)
				}
			}

		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				close(c.send)
				log.Debug().Int("clients", len(clients)).Msg("Realtime client disconnected")
			}

		case msg := <-h.broadcast:
			for c := range clients {
				if !c.trySend(msg) {
					// Slow client: drop it rather than stall everyone.
					delete(clients, c)
					close(c.send)
					log.Warn().Msg("Dropping slow realtime client")
				}
			}

		case <-h.done:
			for c := range clients {
				close(c.send)
			}
			return
		}
	}
}

// Close stops the hub loop and disconnects all clients.
func (h *Hub) Close() {
	close(h.done)
}

// Publish broadcasts one event to every connected client.
func (h *Hub) Publish(eventType string, payload any) {
	msg, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to marshal realtime event")
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// PublishChecking signals that a check cycle has started.
func (h *Hub) PublishChecking() {
	h.Publish(models.EventChecking, nil)
}

// PublishListingsUpdate sends the full listing set plus the next deadline,
// emitted after every completed check whether or not anything changed.
func (h *Hub) PublishListingsUpdate(listings []models.Listing, nextCheck time.Time) {
	if listings == nil {
		listings = []models.Listing{}
	}
	h.Publish(models.EventListingsUpdate, models.ListingsUpdatePayload{
		Listings:  listings,
		NextCheck: nextCheck.UnixMilli(),
	})
}

// PublishNextCheck sends a deadline-only resync, used when the deadline is
// recomputed without a full check (e.g. a schedule change).
func (h *Hub) PublishNextCheck(nextCheck time.Time) {
	h.Publish(models.EventNextCheck, models.NextCheckPayload{NextCheck: nextCheck.UnixMilli()})
}

// PublishError surfaces a failed check to connected clients.
func (h *Hub) PublishError(message, code string) {
	h.Publish(models.EventError, models.ErrorPayload{Message: message, Code: code})
}

func marshalEvent(eventType string, payload any) ([]byte, error) {
	return json.Marshal(models.Event{Type: eventType, Payload: payload})
}
