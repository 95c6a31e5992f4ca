package netutil

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// hasDialLatency is implemented by connections that can report how long
// their dial took, useful for logging which race participant won.
type hasDialLatency interface{ DialLatency() time.Duration }

type dialConn struct {
	net.Conn
	latency time.Duration
}

func (d *dialConn) DialLatency() time.Duration { return d.latency }

var _ hasDialLatency = (*dialConn)(nil)

// Unwrap returns the net.Conn DialFast actually dialed, stripping the
// latency-reporting wrapper, so a caller can type-assert down to
// *net.TCPConn for socket tuning (e.g. SetKeepAlive).
func Unwrap(c net.Conn) net.Conn {
	if d, ok := c.(*dialConn); ok {
		return d.Conn
	}
	return c
}

// DialFast dials addr, racing TCP connect attempts to the resolved IPs
// (the first at once, each later one 50ms after the previous) and
// returning the first to succeed. Literal IP addresses and unparseable
// host:port strings fall back to a single direct dial. timeout bounds the
// race; when no attempt wins within it, a single direct dial of addr
// follows with its own timeout, so one call can take up to about twice
// timeout.
func DialFast(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	start := time.Now()
	direct := func(target string) (net.Conn, error) {
		c, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", target)
		if err != nil {
			return nil, err
		}
		return &dialConn{Conn: c, latency: time.Since(start)}, nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return direct(addr)
	}
	if ip, perr := netip.ParseAddr(host); perr == nil {
		return direct(net.JoinHostPort(ip.String(), port))
	}

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addrs, rerr := net.DefaultResolver.LookupIP(raceCtx, "ip", host)
	if rerr != nil || len(addrs) == 0 {
		return direct(addr)
	}

	type result struct {
		c   net.Conn
		err error
	}
	resCh := make(chan result, 1)
	for i, ip := range addrs {
		go func(delay int, ip net.IP) {
			if delay > 0 {
				select {
				case <-time.After(time.Duration(delay) * 50 * time.Millisecond):
				case <-raceCtx.Done():
					return
				}
			}
			d := &net.Dialer{Timeout: timeout}
			c, e := d.DialContext(raceCtx, "tcp", net.JoinHostPort(ip.String(), port))
			if e == nil {
				select {
				case resCh <- result{c: c}:
					cancel()
				default:
					_ = c.Close()
				}
			}
		}(i, ip)
	}
	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, r.err
		}
		return &dialConn{Conn: r.c, latency: time.Since(start)}, nil
	case <-raceCtx.Done():
		return direct(addr)
	}
}
