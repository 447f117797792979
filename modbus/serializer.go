package modbus

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// DefaultTimeout bounds every request unless WithTimeout says otherwise.
const DefaultTimeout = time.Second

// State is the connection state of a Serializer.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	var str string
	switch s {
	case StateDisconnected:
		str = "disconnected"
	case StateConnecting:
		str = "connecting"
	case StateConnected:
		str = "connected"
	}
	return str
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Serializer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used for connection events.
func WithLogger(l log.Logger) Option {
	return func(s *Serializer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics makes the Serializer report to m.
func WithMetrics(m *Metrics) Option {
	return func(s *Serializer) {
		s.metrics = m
	}
}

// connectAttempt is shared by every caller waiting on the same Connect.
// released is closed once its goroutine stopped touching the connection,
// including when the attempt was abandoned.
type connectAttempt struct {
	done     chan struct{}
	released chan struct{}
	err      error
}

// Serializer funnels all requests of its callers through one connection. A
// caller owns the connection for the whole function passed to Do; callers
// blocked in Do are admitted in arrival order.
//
// The connection is opened lazily and reopened on demand after a timeout or
// a connection failure. Nothing is retried.
type Serializer struct {
	conn    Conn
	timeout time.Duration
	logger  log.Logger
	metrics *Metrics

	// gate is a one slot semaphore. Go queues blocked senders first in
	// first out.
	gate chan struct{}

	mu      sync.Mutex
	state   State
	attempt *connectAttempt
	// closing is closed once every earlier close, abandoned request and
	// abandoned connect finished. The next Connect waits for it.
	closing <-chan struct{}
}

// NewSerializer returns a disconnected Serializer for conn.
func NewSerializer(conn Conn, opts ...Option) *Serializer {
	s := &Serializer{
		conn:    conn,
		timeout: DefaultTimeout,
		logger:  log.NewNopLogger(),
		gate:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.setState(StateDisconnected)
	return s
}

// State returns the current connection state.
func (s *Serializer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open connects unless already connected, joining an attempt in progress.
func (s *Serializer) Open(ctx context.Context) error {
	return s.ensureConnected(ctx)
}

// Do waits for its turn, connects if needed and runs f with exclusive use of
// the connection. Every request f issues on the given Transport is bounded
// by the timeout and ctx. Do must not be called from within f.
func (s *Serializer) Do(ctx context.Context, f func(Transport) error) error {
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.gate }()

	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	return f(&boundTransport{s: s, ctx: ctx})
}

// Close releases the connection. It does not cancel a request in flight;
// the next Do reconnects. A connect in progress is abandoned and Close
// returns once it finished.
func (s *Serializer) Close() error {
	s.mu.Lock()
	if s.attempt != nil {
		s.abandonAttempt()
	}
	s.setState(StateDisconnected)
	res := s.release(nil, true)
	s.mu.Unlock()
	return <-res
}

// setState must be called with s.mu held.
func (s *Serializer) setState(st State) {
	s.state = st
	s.metrics.setState(st)
}

func (s *Serializer) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	a := s.attempt
	if a == nil {
		a = &connectAttempt{done: make(chan struct{}), released: make(chan struct{})}
		s.attempt = a
		s.setState(StateConnecting)
		go s.connect(a, s.closing)
		s.closing = nil
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-a.done:
		return a.err
	case <-timer.C:
		s.mu.Lock()
		if s.attempt == a {
			s.abandonAttempt()
			s.setState(StateDisconnected)
		}
		s.mu.Unlock()
		return &TimeoutError{Op: "connect", Timeout: s.timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abandonAttempt detaches the running attempt. Its goroutine closes the
// connection should the Connect still succeed, and the next attempt waits
// for it. s.mu must be held.
func (s *Serializer) abandonAttempt() {
	released := s.attempt.released
	s.attempt = nil
	prev := s.closing
	if prev == nil {
		s.closing = released
		return
	}
	both := make(chan struct{})
	go func() {
		<-prev
		<-released
		close(both)
	}()
	s.closing = both
}

// connect runs one attempt once the previous connection finished closing.
func (s *Serializer) connect(a *connectAttempt, closing <-chan struct{}) {
	defer close(a.released)
	if closing != nil {
		<-closing
	}
	level.Debug(s.logger).Log("msg", "connecting to PLC")
	err := s.conn.Connect()

	s.mu.Lock()
	abandoned := s.attempt != a
	switch {
	case abandoned:
		if err == nil {
			// No later attempt connects before released is closed.
			s.conn.Close()
		}
		err = &ConnectionError{Op: "connect", Err: ErrClosed}
	case err != nil:
		err = &ConnectionError{Op: "connect", Err: err}
		s.setState(StateDisconnected)
	default:
		s.setState(StateConnected)
	}
	if s.attempt == a {
		s.attempt = nil
	}
	a.err = err
	s.mu.Unlock()

	s.metrics.observeConnect(err)
	if err != nil {
		level.Warn(s.logger).Log("msg", "connection to PLC failed", "err", err)
	} else {
		level.Info(s.logger).Log("msg", "connected to PLC")
	}
	close(a.done)
}

// drop marks the connection down and closes it in the background. pending,
// when set, reports the end of an abandoned request still holding the
// transport: the close and the next attempt wait for it.
func (s *Serializer) drop(reason error, pending <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		if pending != nil {
			s.release(pending, false)
		}
		return
	}
	s.setState(StateDisconnected)
	s.release(pending, true)
	level.Warn(s.logger).Log("msg", "dropping PLC connection", "err", reason)
}

// release closes the connection after every earlier close and pending, if
// set, finished. Later connect attempts wait for it. The result of Close is
// delivered on the returned channel. s.mu must be held.
func (s *Serializer) release(pending <-chan error, closeConn bool) <-chan error {
	res := make(chan error, 1)
	closing := make(chan struct{})
	prev := s.closing
	s.closing = closing
	go func() {
		defer close(closing)
		if prev != nil {
			<-prev
		}
		if pending != nil {
			<-pending
		}
		var err error
		if closeConn {
			err = s.conn.Close()
		}
		res <- err
	}()
	return res
}

// call runs one transport request under the timeout and ctx.
func (s *Serializer) call(ctx context.Context, op string, f func() error) error {
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- f() }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
		err = s.normalize(op, err)
	case <-timer.C:
		err = &TimeoutError{Op: op, Timeout: s.timeout}
		s.drop(err, done)
	case <-ctx.Done():
		err = ctx.Err()
		s.drop(err, done)
	}
	s.metrics.observeRequest(op, err, time.Since(start))
	return err
}

// normalize maps transport errors onto TimeoutError and ConnectionError,
// dropping the connection for both. Exception responses and other errors
// pass through unchanged.
func (s *Serializer) normalize(op string, err error) error {
	switch {
	case err == nil, isException(err):
		return err
	case isTimeout(err):
		err = &TimeoutError{Op: op, Timeout: s.timeout}
	case isConnectionError(err):
		err = &ConnectionError{Op: op, Err: err}
	default:
		return err
	}
	s.drop(err, nil)
	return err
}

// boundTransport is the Transport handed to Do callers. Results are only
// read once the request goroutine reported back.
type boundTransport struct {
	s   *Serializer
	ctx context.Context
}

func (b *boundTransport) ReadBits(addr, count uint16) ([]bool, error) {
	var out []bool
	err := b.s.call(b.ctx, "read_bits", func() (err error) {
		out, err = b.s.conn.ReadBits(addr, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *boundTransport) ReadWords(addr, count uint16) ([]uint16, error) {
	var out []uint16
	err := b.s.call(b.ctx, "read_words", func() (err error) {
		out, err = b.s.conn.ReadWords(addr, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *boundTransport) WriteBit(addr uint16, v bool) error {
	return b.s.call(b.ctx, "write_bit", func() error {
		return b.s.conn.WriteBit(addr, v)
	})
}

func (b *boundTransport) WriteBits(addr uint16, values []bool) error {
	return b.s.call(b.ctx, "write_bits", func() error {
		return b.s.conn.WriteBits(addr, values)
	})
}

func (b *boundTransport) WriteWord(addr uint16, v uint16) error {
	return b.s.call(b.ctx, "write_word", func() error {
		return b.s.conn.WriteWord(addr, v)
	})
}

func (b *boundTransport) WriteWords(addr uint16, values []uint16) error {
	return b.s.call(b.ctx, "write_words", func() error {
		return b.s.conn.WriteWords(addr, values)
	})
}
