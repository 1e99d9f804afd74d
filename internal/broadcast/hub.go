package broadcast

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bustrack/internal/domain"
)

// Publisher fans a session event out to topic subscribers. Delivery is
// fire-and-forget: no acknowledgment, no retry, no persistence. A failed
// or slow subscriber never affects the session mutation that produced the
// event.
type Publisher interface {
	Publish(env domain.Envelope, topics ...Topic)
}

// relayChannel is the Redis pub/sub channel bridging hub instances.
const relayChannel = "bustrack:events"

// relayFrame wraps an envelope crossing instances. Origin lets a hub skip
// its own messages so a subscriber receives each event at most once.
type relayFrame struct {
	Origin   string          `json:"origin"`
	Topics   []Topic         `json:"topics"`
	Envelope json.RawMessage `json:"envelope"`
}

// Hub resolves events to subscriber connections through a Registry and
// delivers them. With a Redis client it also relays events to hubs in other
// processes.
type Hub struct {
	registry   *Registry
	redis      *redis.Client
	instanceID string
	cancel     context.CancelFunc
}

// NewHub creates a Hub. redisClient may be nil for single-instance use.
func NewHub(registry *Registry, redisClient *redis.Client) *Hub {
	h := &Hub{
		registry:   registry,
		redis:      redisClient,
		instanceID: uuid.New().String(),
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.relay(ctx)
	}
	return h
}

// Publish delivers the envelope to every connection joined to any of the
// given topics, at most once per connection. The envelope's Topic field is
// set to the topic the connection matched on.
func (h *Hub) Publish(env domain.Envelope, topics ...Topic) {
	h.deliver(env, topics)

	if h.redis != nil {
		raw, err := json.Marshal(env)
		if err != nil {
			log.Printf("broadcast: marshal envelope: %v", err)
			return
		}
		frame, err := json.Marshal(relayFrame{
			Origin:   h.instanceID,
			Topics:   topics,
			Envelope: raw,
		})
		if err != nil {
			log.Printf("broadcast: marshal relay frame: %v", err)
			return
		}
		if err := h.redis.Publish(context.Background(), relayChannel, frame).Err(); err != nil {
			log.Printf("broadcast: redis publish: %v", err)
		}
	}
}

// deliver resolves the union of subscribers across topics and sends each
// connection the envelope once. Sends never block; a full buffer drops the
// event for that subscriber.
func (h *Hub) deliver(env domain.Envelope, topics []Topic) {
	matched := make(map[*Connection]Topic)
	for _, topic := range topics {
		for _, conn := range h.registry.Subscribers(topic) {
			if _, seen := matched[conn]; !seen {
				matched[conn] = topic
			}
		}
	}

	byTopic := make(map[Topic][]byte)
	for conn, topic := range matched {
		payload, ok := byTopic[topic]
		if !ok {
			env.Topic = string(topic)
			var err error
			payload, err = json.Marshal(env)
			if err != nil {
				log.Printf("broadcast: marshal envelope: %v", err)
				return
			}
			byTopic[topic] = payload
		}

		select {
		case conn.Send <- payload:
		default:
		}
	}
}

// relay re-delivers events published by other hub instances to local
// subscribers.
func (h *Hub) relay(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var frame relayFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			log.Printf("broadcast: unmarshal relay frame: %v", err)
			continue
		}
		if frame.Origin == h.instanceID {
			continue
		}

		// Re-deliver raw: payloads are already typed at the publishing end.
		// Same at-most-once rule as local delivery.
		matched := make(map[*Connection]Topic)
		for _, topic := range frame.Topics {
			for _, conn := range h.registry.Subscribers(topic) {
				if _, seen := matched[conn]; !seen {
					matched[conn] = topic
				}
			}
		}

		byTopic := make(map[Topic][]byte)
		for conn, topic := range matched {
			raw, ok := byTopic[topic]
			if !ok {
				var err error
				raw, err = retag(frame.Envelope, topic)
				if err != nil {
					log.Printf("broadcast: retag envelope: %v", err)
					break
				}
				byTopic[topic] = raw
			}
			select {
			case conn.Send <- raw:
			default:
			}
		}
	}
}

// retag rewrites the topic field of a marshaled envelope.
func retag(raw json.RawMessage, topic Topic) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	t, err := json.Marshal(string(topic))
	if err != nil {
		return nil, err
	}
	m["topic"] = t
	return json.Marshal(m)
}

// Shutdown stops the relay subscription, if any.
func (h *Hub) Shutdown() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Ensure Hub implements Publisher.
var _ Publisher = (*Hub)(nil)
