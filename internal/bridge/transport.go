package bridge

import "sync"

// Transport is one end of the bridge. Post is fire-and-forget, like
// window.postMessage: no delivery guarantee and no reply. Inbound
// messages arrive on the registered handler; malformed ones are dropped
// before it runs.
type Transport interface {
	Post(m Message) error
	OnMessage(fn func(Message))
	Close() error
}

// pairEnd is one side of an in-process transport pair. Delivery is
// synchronous, mirroring same-event-loop message dispatch.
type pairEnd struct {
	mu      sync.Mutex
	peer    *pairEnd
	handler func(Message)
	closed  bool
}

// NewPair returns two connected in-process transports. Messages posted on
// one end are validated and delivered to the other end's handler.
func NewPair() (Transport, Transport) {
	a := &pairEnd{}
	b := &pairEnd{}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *pairEnd) Post(m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}

	p.peer.mu.Lock()
	h := p.peer.handler
	p.peer.mu.Unlock()
	if h != nil {
		h(m)
	}
	return nil
}

func (p *pairEnd) OnMessage(fn func(Message)) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

func (p *pairEnd) Close() error {
	p.mu.Lock()
	p.closed = true
	p.handler = nil
	p.mu.Unlock()
	return nil
}
