package controller

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/netip"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/domain"
)

const (
	socks5Version = 0x05

	socks5CmdConnect      = 0x01
	socks5CmdBind         = 0x02
	socks5CmdUDPAssociate = 0x03

	socks5AtypIPv4   = 0x01
	socks5AtypDomain = 0x03
	socks5AtypIPv6   = 0x04

	socks5ReplySucceeded = 0x00
	socks5ReplyFailure   = 0x01
)

// handleSOCKS5 implements §4.4.2: standard handshake (no-auth only),
// CONNECT-only request handling, grounded on
// other_examples/c22a3190_dmitrymodder-minewire-app__go-proxy.go.go's
// handleSocks byte-parsing, adapted from a single global tunnel session
// to a per-connection tunnel-init call.
func handleSOCKS5(conn net.Conn, state *AgentState) {
	defer func() {
		if r := recover(); r != nil {
			state.Logger.Error("recovered in handleSOCKS5", zap.Any("panic", r))
			conn.Close()
		}
	}()

	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		conn.Close()
		return
	}
	nMethods := int(hdr[1])
	methods := make([]byte, nMethods)
	if _, err := io.ReadFull(conn, methods); err != nil {
		conn.Close()
		return
	}
	if _, err := conn.Write([]byte{socks5Version, 0x00}); err != nil {
		conn.Close()
		return
	}

	reqHdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, reqHdr); err != nil {
		conn.Close()
		return
	}
	cmd, atyp := reqHdr[1], reqHdr[3]

	dst, rawAddr, err := readSOCKS5Address(conn, atyp)
	if err != nil {
		state.Logger.Debug("socks5: invalid address", zap.Error(err))
		conn.Close()
		return
	}

	if cmd != socks5CmdConnect {
		state.Logger.Debug("socks5: rejecting command", zap.Int("cmd", int(cmd)), zap.Error(ErrUnsupportedSocksV5Command))
		conn.Close()
		return
	}

	raw, kA, proxyEnc, err := tunnelInitAgent(context.Background(), state, dst, domain.TCPTunnel{Keepalive: false})
	if err != nil {
		state.Logger.Debug("socks5: tunnel-init failed", zap.String("dst", dst.String()), zap.Error(err))
		conn.Close()
		return
	}

	reply := append([]byte{socks5Version, socks5ReplySucceeded, 0x00, atyp}, rawAddr...)
	if _, err := conn.Write(reply); err != nil {
		raw.Close()
		conn.Close()
		return
	}

	agentRelay(conn, raw, kA, proxyEnc, nil, state)
}

// readSOCKS5Address parses the address portion of a SOCKS5 request
// (after VER/CMD/RSV/ATYP) and returns both the decoded UnifiedAddress
// and the raw bytes, so a CONNECT reply can echo the same address back.
func readSOCKS5Address(r io.Reader, atyp byte) (domain.UnifiedAddress, []byte, error) {
	switch atyp {
	case socks5AtypIPv4:
		buf := make([]byte, 4+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return domain.UnifiedAddress{}, nil, err
		}
		ip, _ := netip.AddrFromSlice(buf[:4])
		port := binary.BigEndian.Uint16(buf[4:])
		return domain.NewIPAddress(ip, port), buf, nil
	case socks5AtypIPv6:
		buf := make([]byte, 16+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return domain.UnifiedAddress{}, nil, err
		}
		ip, _ := netip.AddrFromSlice(buf[:16])
		port := binary.BigEndian.Uint16(buf[16:])
		return domain.NewIPAddress(ip, port), buf, nil
	case socks5AtypDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return domain.UnifiedAddress{}, nil, err
		}
		rest := make([]byte, int(lenBuf[0])+2)
		if _, err := io.ReadFull(r, rest); err != nil {
			return domain.UnifiedAddress{}, nil, err
		}
		host := string(rest[:lenBuf[0]])
		port := binary.BigEndian.Uint16(rest[lenBuf[0]:])
		addr, err := domain.NewDomainAddress(host, port)
		if err != nil {
			return domain.UnifiedAddress{}, nil, err
		}
		return addr, append(lenBuf, rest...), nil
	default:
		return domain.UnifiedAddress{}, nil, ErrUnknownClientProtocol
	}
}
