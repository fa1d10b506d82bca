package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Default subjects for the two directions of the bridge.
const (
	SubjectToHost   = "chat.bridge.host"
	SubjectToWidget = "chat.bridge.widget"
)

// NATSTransport carries bridge messages over core NATS pub/sub. Core
// NATS (not JetStream) matches the contract: delivery is best-effort,
// exactly like postMessage into a page that may already be gone.
type NATSTransport struct {
	nc        *nats.Conn
	ownsConn  bool
	publishTo string
	listenOn  string
	sub       *nats.Subscription
}

// ConnectNATS dials the server and returns a transport publishing to
// publishTo and receiving on listenOn.
func ConnectNATS(url, publishTo, listenOn string) (*NATSTransport, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	t := NewNATSTransport(nc, publishTo, listenOn)
	t.ownsConn = true
	return t, nil
}

// NewNATSTransport wraps an existing connection (shared with other
// components; not closed by this transport).
func NewNATSTransport(nc *nats.Conn, publishTo, listenOn string) *NATSTransport {
	return &NATSTransport{nc: nc, publishTo: publishTo, listenOn: listenOn}
}

func (t *NATSTransport) Post(m Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return t.nc.Publish(t.publishTo, data)
}

// OnMessage subscribes to the inbound subject. Messages that fail
// structural validation are logged and dropped.
func (t *NATSTransport) OnMessage(fn func(Message)) {
	if t.sub != nil {
		t.sub.Unsubscribe()
		t.sub = nil
	}
	sub, err := t.nc.Subscribe(t.listenOn, func(msg *nats.Msg) {
		m, err := Decode(msg.Data)
		if err != nil {
			slog.Warn("ignoring malformed bridge message",
				"subject", msg.Subject,
				"error", err,
			)
			return
		}
		fn(m)
	})
	if err != nil {
		slog.Error("bridge subscribe failed", "subject", t.listenOn, "error", err)
		return
	}
	t.sub = sub
}

func (t *NATSTransport) Close() error {
	if t.sub != nil {
		t.sub.Unsubscribe()
		t.sub = nil
	}
	if t.ownsConn {
		t.nc.Drain()
	}
	return nil
}

// Conn exposes the underlying connection for components that share it.
func (t *NATSTransport) Conn() *nats.Conn { return t.nc }
