package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Notifier publishes a wake-up message whenever a job is enqueued, so
// idle workers don't have to wait out a full poll interval. It is a thin
// core-NATS pub/sub wrapper — unlike internal/linkverify's JetStream KV
// cache, wake-ups are fire-and-forget: a missed notification just means
// the next poll interval picks the job up, so no durability is needed.
type Notifier struct {
	url     string
	subject string

	mu   sync.RWMutex
	conn *nats.Conn
}

// NewNotifier creates a Notifier. Connection failures at construction
// time are non-fatal; Publish/Subscribe retry on demand.
func NewNotifier(url, subject string) *Notifier {
	n := &Notifier{url: url, subject: subject}
	if err := n.connect(); err != nil {
		slog.Warn("initial NATS connection failed, will retry on first use", "url", url, "error", err)
	}
	return n
}

func (n *Notifier) connect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	conn, err := nats.Connect(n.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}
	n.conn = conn
	return nil
}

func (n *Notifier) ensureConnected() *nats.Conn {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn != nil && conn.IsConnected() {
		return conn
	}
	if err := n.connect(); err != nil {
		slog.Debug("nats reconnect failed", "error", err)
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn
}

// Publish sends a wake-up notification. Failures are logged and
// swallowed — the job is already durably enqueued in SQLite by the time
// Publish is called, so a dropped notification costs latency, not data.
func (n *Notifier) Publish(jobType string) {
	conn := n.ensureConnected()
	if conn == nil {
		return
	}
	if err := conn.Publish(n.subject, []byte(jobType)); err != nil {
		slog.Debug("nats publish failed", "error", err)
	}
}

// Subscribe registers fn to run whenever a wake-up notification arrives.
// Returns a cleanup func, or a no-op if the connection isn't available.
func (n *Notifier) Subscribe(fn func(jobType string)) func() {
	conn := n.ensureConnected()
	if conn == nil {
		return func() {}
	}
	sub, err := conn.Subscribe(n.subject, func(msg *nats.Msg) {
		fn(string(msg.Data))
	})
	if err != nil {
		slog.Debug("nats subscribe failed", "error", err)
		return func() {}
	}
	return func() { _ = sub.Unsubscribe() }
}

// Close releases the underlying connection.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}
