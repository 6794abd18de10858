package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors sequenced events onto NATS subjects so other
// processes (exporters, auditing, ops tooling) can observe mutations without
// holding an HTTP stream open.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("opssync-publisher"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber consumes raw event payloads from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with unlimited reconnects. Callers may append
// nats.Option values such as disconnect or reconnect handlers.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	base := []nats.Option{
		nats.Name("opssync-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// feed is the delivery state shared between the NATS callback goroutine and
// the cancel function returned by Subscribe.
type feed struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
	once   sync.Once
}

func (f *feed) deliver(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- data:
	default:
		// Slow consumers lose messages rather than stalling the NATS client.
	}
}

func (f *feed) stop(unsub func() error) {
	f.once.Do(func() {
		_ = unsub()
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		for {
			select {
			case <-f.ch:
			default:
				close(f.ch)
				return
			}
		}
	})
}

// Subscribe delivers payloads published to topic, which may use NATS
// wildcards such as "opssync.>". The returned cancel function unsubscribes
// and closes the channel; calling it more than once is safe.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	f := &feed{ch: make(chan []byte, 64)}

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		f.deliver(msg.Data)
	})
	if err != nil {
		close(f.ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Make sure the server has registered the subscription before we return,
	// so publishes from other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(f.ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	return f.ch, func() { f.stop(sub.Unsubscribe) }, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
