package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quorum/internal/logging"
)

// Transport is the primary connection the stream writes to. Satisfied by
// *websocket.Conn; tests substitute an in-memory recorder.
type Transport interface {
	WriteJSON(v any) error
}

// StreamConfig bounds the stream's queue and ack behavior.
type StreamConfig struct {
	AckTimeout time.Duration
	QueueSize  int
}

// Stream is the per-session event pipeline. All producers enqueue through
// Emit; exactly one sender goroutine writes to the transport, so events
// appear on the wire in the exact order their ids were assigned. Pending
// acks live in a map owned by this stream alone - nothing else touches it.
//
// Two locks: sendMu serializes eid assignment and enqueue (that coupling
// is what makes wire order equal id order), ackMu owns the pending map.
// A full queue behind a stalled transport therefore blocks producers, and
// only producers: acks and deadline timers never wait on the send path.
type Stream struct {
	sessionID string
	transport Transport
	relay     Relay
	channel   string
	cfg       StreamConfig

	queue chan Event
	wg    sync.WaitGroup

	sendMu  sync.Mutex
	nextEID uint64
	closed  bool

	ackMu   sync.Mutex
	pending map[uint64]*pendingAck

	// ackMisses counts deadline expiries, for tests and metrics.
	ackMisses int
}

// pendingAck tracks one unacknowledged event until ack or deadline.
type pendingAck struct {
	eid      uint64
	deadline time.Time
	timer    *time.Timer
}

// NewStream creates a session stream and starts its sender loop.
func NewStream(sessionID string, transport Transport, relay Relay, cfg StreamConfig) *Stream {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if relay == nil {
		relay = NopRelay{}
	}

	s := &Stream{
		sessionID: sessionID,
		transport: transport,
		relay:     relay,
		channel:   fmt.Sprintf("quorum:session:%s:events", sessionID),
		cfg:       cfg,
		queue:     make(chan Event, cfg.QueueSize),
		pending:   make(map[uint64]*pendingAck),
	}

	s.wg.Add(1)
	go s.sender()
	return s
}

// Emit assigns the next event id, registers the ack deadline when
// requested, mirrors the event to the relay and enqueues it for the
// sender. Returns the assigned eid, or 0 when the stream is closed.
// Eid assignment and enqueue happen under sendMu so wire order always
// matches id order.
func (s *Stream) Emit(typ EventType, payload any, requiresAck bool) uint64 {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		logging.ProtocolDebug("Emit on closed stream %s dropped (%s)", s.sessionID, typ)
		return 0
	}

	s.nextEID++
	ev := Event{
		Type:        typ,
		EID:         s.nextEID,
		Payload:     payload,
		RequiresAck: requiresAck,
		CreatedAt:   time.Now(),
	}

	if requiresAck {
		s.registerAck(ev.EID)
	}

	s.queue <- ev
	s.sendMu.Unlock()

	s.publishRelay(ev)
	return ev.EID
}

// registerAck creates the pending entry and its deadline timer. Expiry is
// an observability signal only: it logs and counts, it never interrupts
// the orchestration loop.
func (s *Stream) registerAck(eid uint64) {
	p := &pendingAck{
		eid:      eid,
		deadline: time.Now().Add(s.cfg.AckTimeout),
	}
	p.timer = time.AfterFunc(s.cfg.AckTimeout, func() {
		s.ackMu.Lock()
		defer s.ackMu.Unlock()
		if _, ok := s.pending[eid]; !ok {
			return // acked in the meantime
		}
		delete(s.pending, eid)
		s.ackMisses++
		logging.Protocol("Ack timeout: session=%s eid=%d after %v", s.sessionID, eid, s.cfg.AckTimeout)
	})
	s.ackMu.Lock()
	s.pending[eid] = p
	s.ackMu.Unlock()
}

// Ack settles a pending acknowledgment. Duplicate acks and acks for
// unknown eids are logged and ignored - never fatal to the session.
func (s *Stream) Ack(eid uint64) bool {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()

	p, ok := s.pending[eid]
	if !ok {
		logging.ProtocolDebug("Ignoring ack for unknown eid %d on session %s", eid, s.sessionID)
		return false
	}
	p.timer.Stop()
	delete(s.pending, eid)
	logging.ProtocolDebug("Acked eid %d on session %s", eid, s.sessionID)
	return true
}

// PendingAcks returns the number of unsettled acknowledgments.
func (s *Stream) PendingAcks() int {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	return len(s.pending)
}

// AckMisses returns how many ack deadlines have expired.
func (s *Stream) AckMisses() int {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	return s.ackMisses
}

// LastEID returns the most recently assigned event id.
func (s *Stream) LastEID() uint64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.nextEID
}

// Close drains the queue, stops the sender and cancels pending ack
// timers. Safe to call more than once.
func (s *Stream) Close() {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.sendMu.Unlock()

	s.ackMu.Lock()
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[uint64]*pendingAck)
	s.ackMu.Unlock()

	s.wg.Wait()
}

// sender is the single writer to the transport. Write failures are
// logged, not propagated: a dead connection surfaces through the server's
// read loop instead.
func (s *Stream) sender() {
	defer s.wg.Done()
	for ev := range s.queue {
		if err := s.transport.WriteJSON(ev); err != nil {
			logging.Protocol("Send failed on session %s (eid %d): %v", s.sessionID, ev.EID, err)
		}
	}
}

// publishRelay mirrors the event to the secondary channel. Best-effort
// and bounded: it must never block or fail the primary send path.
func (s *Stream) publishRelay(ev Event) {
	data, err := ev.Marshal()
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.relay.Publish(ctx, s.channel, data)
	}()
}
