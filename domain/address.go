// Package domain holds the wire-level value types shared by the Agent and
// the Proxy: addresses, encryption selectors, tunnel-init messages,
// heartbeats and the tagged control/data packets that ride on top of the
// frame codec.
package domain

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// AddressKind distinguishes the two UnifiedAddress variants.
type AddressKind int

const (
	// AddressDomain names a destination by hostname, resolved via DNS.
	AddressDomain AddressKind = iota
	// AddressIP names a destination by literal IPv4 or IPv6 address.
	AddressIP
)

// UnifiedAddress is a destination address that round-trips to and from a
// "host:port" wire string. Exactly one of the Domain or IP fields is
// meaningful, selected by Kind. The port is always present; an empty host
// is rejected by ParseUnifiedAddress.
type UnifiedAddress struct {
	Kind AddressKind
	Host string     // valid when Kind == AddressDomain
	IP   netip.Addr // valid when Kind == AddressIP
	Port uint16
}

// resolveCache memoizes Domain -> []netip.AddrPort lookups for a short TTL
// so a hot destination isn't re-resolved on every tunnel-init.
var resolveCache = cache.New(30*time.Second, time.Minute)

// NewDomainAddress builds a Domain-variant UnifiedAddress.
func NewDomainAddress(host string, port uint16) (UnifiedAddress, error) {
	if host == "" {
		return UnifiedAddress{}, fmt.Errorf("domain: empty host")
	}
	return UnifiedAddress{Kind: AddressDomain, Host: host, Port: port}, nil
}

// NewIPAddress builds an IP-variant UnifiedAddress.
func NewIPAddress(addr netip.Addr, port uint16) UnifiedAddress {
	return UnifiedAddress{Kind: AddressIP, IP: addr, Port: port}
}

// ParseUnifiedAddress parses a "host:port" string into a UnifiedAddress,
// preferring the IP variant when the host parses as a literal address.
func ParseUnifiedAddress(s string) (UnifiedAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return UnifiedAddress{}, fmt.Errorf("domain: invalid address %q: %w", s, err)
	}
	if host == "" {
		return UnifiedAddress{}, fmt.Errorf("domain: empty host in %q", s)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return UnifiedAddress{}, fmt.Errorf("domain: invalid port in %q: %w", s, err)
	}
	if ip, perr := netip.ParseAddr(host); perr == nil {
		return NewIPAddress(ip, uint16(port)), nil
	}
	return NewDomainAddress(host, uint16(port))
}

// String renders the address back to its "host:port" wire form.
func (a UnifiedAddress) String() string {
	switch a.Kind {
	case AddressIP:
		return net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port)))
	default:
		return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
	}
}

// Resolve returns the socket addresses this UnifiedAddress names. IP
// variants resolve to themselves; Domain variants are looked up via DNS,
// with results cached briefly to spare repeat lookups for hot destinations.
func (a UnifiedAddress) Resolve(ctx context.Context) ([]netip.AddrPort, error) {
	if a.Kind == AddressIP {
		return []netip.AddrPort{netip.AddrPortFrom(a.IP, a.Port)}, nil
	}
	if cached, ok := resolveCache.Get(a.String()); ok {
		return cached.([]netip.AddrPort), nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", a.Host)
	if err != nil {
		return nil, fmt.Errorf("domain: resolve %q: %w", a.Host, err)
	}
	out := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			out = append(out, netip.AddrPortFrom(addr.Unmap(), a.Port))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("domain: no addresses for %q", a.Host)
	}
	resolveCache.Set(a.String(), out, cache.DefaultExpiration)
	return out, nil
}
