package pool

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/codec"
	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
	"github.com/cppla/tunnelmoto/netutil"
)

// Taker is implemented by both Pool and UnpooledDialer so call sites never
// special-case whether pooling is enabled (§4.3.6).
type Taker interface {
	Take(ctx context.Context) (*PooledConnection, error)
	Return(*PooledConnection)
}

var _ Taker = (*Pool)(nil)

// Pool is the bounded FIFO queue of warm Agent->Proxy connections (§4.3).
// The queue itself is the only piece of shared mutable state in the core;
// filling is its own atomic latch so concurrent callers never race each
// other into dialing more connections than are missing.
type Pool struct {
	cfg    *Config
	holder *crypto.RSAHolder // used only for the heartbeat check's control codec
	logger *zap.Logger

	queue   chan *PooledConnection
	filling atomic.Bool
	closed  atomic.Bool

	// mu serializes enqueue against Close so a background filler or
	// checker never sends on p.queue after it has been closed.
	mu sync.Mutex

	stop chan struct{}
}

// New constructs a Pool and performs its initial fill per §4.3.1: if
// FillInterval is unset, fillPool runs once synchronously before New
// returns; otherwise a background loop takes over.
func New(ctx context.Context, cfg *Config, holder *crypto.RSAHolder, logger *zap.Logger) *Pool {
	p := &Pool{
		cfg:    cfg,
		holder: holder,
		logger: logger,
		queue:  make(chan *PooledConnection, cfg.MaxPoolSize),
		stop:   make(chan struct{}),
	}

	if cfg.FillInterval == nil {
		p.fillPool(ctx)
	} else {
		go func() {
			ticker := time.NewTicker(*cfg.FillInterval)
			defer ticker.Stop()
			for {
				select {
				case <-p.stop:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.fillPool(ctx)
				}
			}
		}()
	}

	if cfg.StartCheckTimer {
		go p.runChecker(ctx)
	}

	return p
}

// Close shuts the pool down: subsequent Take calls fail with
// ErrPoolClosed, and queued connections are closed.
func (p *Pool) Close() {
	if !p.closed.CAS(false, true) {
		return
	}
	close(p.stop)

	p.mu.Lock()
	close(p.queue)
	p.mu.Unlock()

	for conn := range p.queue {
		conn.Close()
	}
}

// enqueue delivers conn to the queue, closing it instead when the pool
// is already shut down or the queue is full. Holding mu for the whole
// "check closed, then send" sequence is what makes this safe to race
// against Close: either enqueue observes closed==true and never touches
// the channel, or it wins the lock first and its send (or non-blocking
// miss) completes before Close can close(p.queue).
func (p *Pool) enqueue(conn *PooledConnection, full string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		conn.Close()
		return
	}
	select {
	case p.queue <- conn:
	default:
		p.logger.Warn(full)
		conn.Close()
	}
}

// fillPool implements §4.3.2: bring the pool up to MaxPoolSize warm
// connections, idempotent and reentrant-safe via the filling CAS guard.
func (p *Pool) fillPool(ctx context.Context) {
	current := len(p.queue)
	if current >= p.cfg.MaxPoolSize {
		return
	}
	if !p.filling.CAS(false, true) {
		return
	}
	defer p.filling.Store(false)

	need := p.cfg.MaxPoolSize - current
	produced := make(chan *PooledConnection, need)

	for i := 0; i < need; i++ {
		go p.dialOne(ctx, produced)
	}
	for i := 0; i < need; i++ {
		conn := <-produced
		if conn == nil {
			continue
		}
		p.enqueue(conn, "pool full, dropping freshly dialed connection")
	}
}

func (p *Pool) dialOne(ctx context.Context, produced chan<- *PooledConnection) {
	addr := p.cfg.ProxyAddresses[rand.Intn(len(p.cfg.ProxyAddresses))]
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	rawConn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		p.logger.Debug("pool dial failed", zap.String("addr", addr), zap.Error(err))
		produced <- nil
		return
	}
	if tc, ok := rawConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		if p.cfg.TCPKeepaliveTime > 0 || p.cfg.TCPKeepaliveRetry > 0 {
			_ = tc.SetKeepAliveConfig(net.KeepAliveConfig{
				Enable:   true,
				Idle:     p.cfg.TCPKeepaliveTime,
				Interval: p.cfg.TCPKeepaliveInterval,
				Count:    p.cfg.TCPKeepaliveRetry,
			})
		} else {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(p.cfg.TCPKeepaliveInterval)
		}
		if p.cfg.SocketRecvBufferSize > 0 {
			_ = tc.SetReadBuffer(p.cfg.SocketRecvBufferSize)
		}
		if p.cfg.SocketSendBufferSize > 0 {
			_ = tc.SetWriteBuffer(p.cfg.SocketSendBufferSize)
		}
	}
	p.applyParkingDeadlines(rawConn)
	produced <- newPooledConnection(rawConn, p.cfg)
}

// applyParkingDeadlines implements §4.3.2's "sets read/write timeouts":
// a connection sitting unused in the queue must not stay claimable
// forever if the Proxy side has wedged, so it carries a live
// deadline while parked. Take clears both deadlines before handing a
// connection to a relay session, and checkConnection refreshes them on
// every successful heartbeat, so neither deadline is ever observed by
// the relay's own reads/writes.
func (p *Pool) applyParkingDeadlines(conn net.Conn) {
	if p.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	}
	if p.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	}
}

// Take implements §4.3.3: block until a validated warm connection is
// available, or the pool is closed.
func (p *Pool) Take(ctx context.Context) (*PooledConnection, error) {
	for {
		if p.closed.Load() {
			return nil, ErrPoolClosed
		}
		select {
		case conn, ok := <-p.queue:
			if !ok {
				return nil, ErrPoolClosed
			}
			if conn.NeedsClose() {
				conn.Close()
				continue
			}
			if !conn.NeedsCheck() {
				p.clearParkingDeadlines(conn)
				return conn, nil
			}
			if err := p.checkConnection(conn); err != nil {
				p.logger.Debug("discarding connection that failed heartbeat", zap.Error(err))
				conn.Close()
				continue
			}
			p.clearParkingDeadlines(conn)
			return conn, nil
		default:
			go p.fillPool(ctx)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetakeInterval):
			}
		}
	}
}

// clearParkingDeadlines releases the dial-time/check-time parking
// deadlines a connection carries while idle in the queue: once Take
// hands it to a relay session it may legitimately sit quiet far longer
// than ReadTimeout/WriteTimeout without that being a hung Proxy.
func (p *Pool) clearParkingDeadlines(conn *PooledConnection) {
	if p.cfg.ReadTimeout > 0 {
		_ = conn.Conn.SetReadDeadline(time.Time{})
	}
	if p.cfg.WriteTimeout > 0 {
		_ = conn.Conn.SetWriteDeadline(time.Time{})
	}
}

// Return is a no-op: once taken for a relay session a connection is
// consumed for the life of that session and never rejoins the pool
// (§4.5.3). The method exists so Pool satisfies Taker alongside
// UnpooledDialer.
func (p *Pool) Return(*PooledConnection) {}

// checkConnection implements §4.3.4: a heartbeat round-trip over a
// temporary control codec, with the codec unwrapped (and any buffered
// read bytes preserved) before returning.
func (p *Pool) checkConnection(conn *PooledConnection) error {
	_ = conn.Conn.SetReadDeadline(time.Now().Add(p.cfg.PingPongReadTimeout))
	defer func() {
		_ = conn.Conn.SetReadDeadline(time.Time{})
		p.applyParkingDeadlines(conn.Conn)
	}()

	cc := codec.NewControlCodec(conn.Conn, p.holder)
	if err := cc.Encode(domain.ControlHeartbeat{Heartbeat: domain.Heartbeat{
		Kind: domain.HeartbeatPing,
		Time: time.Now().UTC(),
	}}); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyConnectionExhausted, err)
	}

	pkt, err := cc.Decode()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrPingPongTimeout
		}
		return fmt.Errorf("%w: %v", ErrProxyConnectionExhausted, err)
	}
	if _, ok := pkt.(domain.ControlHeartbeat); !ok {
		return ErrInvalidProxyDataType
	}

	conn.Conn = netutil.NewPrefixConn(conn.Conn, cc.Unwrap().Buffered())
	conn.LastCheckedAt = time.Now().UTC()
	return nil
}

// runChecker implements §4.3.5: a periodic sweep of the queue that evicts
// aged-out connections, skips fresh ones, and heartbeat-checks the rest
// concurrently, re-inserting survivors sorted oldest-checked-first.
func (p *Pool) runChecker(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.CheckTimerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCheckerOnce()
		}
	}
}

func (p *Pool) runCheckerOnce() {
	if p.filling.Load() {
		return
	}
	n := len(p.queue)
	if n == 0 {
		return
	}

	batch := make([]*PooledConnection, 0, n)
	for len(batch) < n {
		select {
		case conn := <-p.queue:
			batch = append(batch, conn)
		default:
			n = len(batch) // queue drained early
		}
	}

	keep := make(chan *PooledConnection, len(batch))
	expected := 0
	for _, conn := range batch {
		if conn.NeedsClose() {
			conn.Close()
			continue
		}
		if !conn.NeedsCheck() {
			expected++
			keep <- conn
			continue
		}
		expected++
		go func(c *PooledConnection) {
			if err := p.checkConnection(c); err != nil {
				p.logger.Debug("periodic check discarded connection", zap.Error(err))
				c.Close()
				keep <- nil
				return
			}
			keep <- c
		}(conn)
	}

	survivors := make([]*PooledConnection, 0, len(batch))
	for i := 0; i < expected; i++ {
		if c := <-keep; c != nil {
			survivors = append(survivors, c)
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].LastCheckedAt.Before(survivors[j].LastCheckedAt)
	})
	for _, conn := range survivors {
		p.enqueue(conn, "pool full during periodic re-insert, dropping connection")
	}
}
