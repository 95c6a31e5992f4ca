package controller

import (
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/codec"
	"github.com/cppla/tunnelmoto/domain"
)

// udpRelayDestination abstracts the far side of a UDP tunnel so
// relayProxyUDP works the same whether that far side is a real UDP
// socket (udpDestination) or another hop in a forward chain
// (forwardUDPDestination, §4.5.4).
type udpRelayDestination interface {
	io.Closer
	ReadDatagram() (src domain.UnifiedAddress, payload []byte, err error)
	WriteDatagram(dst domain.UnifiedAddress, payload []byte) error
}

// udpDestination is the Proxy-side UDP socket backing a TunnelType::Udp
// tunnel (SUPPLEMENTAL FEATURES): unlike the TCP destination, a single
// UDP tunnel may carry packets to more than one destination address, one
// per AgentUDP frame, so it is relayed by its own loop rather than
// through the byte-stream relayTCP helper.
type udpDestination struct {
	pc net.PacketConn
}

func newUDPDestination() (*udpDestination, error) {
	pc, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		return nil, err
	}
	return &udpDestination{pc: pc}, nil
}

func (u *udpDestination) Close() error { return u.pc.Close() }

func (u *udpDestination) ReadDatagram() (domain.UnifiedAddress, []byte, error) {
	buf := make([]byte, 65536)
	n, from, err := u.pc.ReadFrom(buf)
	if err != nil {
		return domain.UnifiedAddress{}, nil, err
	}
	srcAddr, err := domain.ParseUnifiedAddress(from.String())
	if err != nil {
		return domain.UnifiedAddress{}, nil, err
	}
	return srcAddr, buf[:n], nil
}

// WriteDatagram resolves dst and writes payload to it. An unresolvable
// destination is dropped rather than treated as fatal, since one bad
// address should not tear down the whole tunnel.
func (u *udpDestination) WriteDatagram(dst domain.UnifiedAddress, payload []byte) error {
	addrs, err := dst.Resolve(context.Background())
	if err != nil || len(addrs) == 0 {
		return nil
	}
	_, err = u.pc.WriteTo(payload, net.UDPAddrFromAddrPort(addrs[0]))
	return err
}

var _ udpRelayDestination = (*udpDestination)(nil)

// relayProxyUDP implements the Proxy side of UDP tunnel relay: each
// AgentUDP received is written to its named destination; each datagram
// read back is wrapped as a ProxyUDP naming its source and sent upstream.
// Each direction runs until its source ends or a write fails;
// relayProxyUDP returns, closing dest, only after both have ended.
func relayProxyUDP(agentConn net.Conn, dest udpRelayDestination, kA, kP [32]byte, logger *zap.Logger) {
	defer dest.Close()
	dc := codec.NewDataCodec(agentConn, kA, kP, codec.SideProxy)

	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		for {
			srcAddr, payload, err := dest.ReadDatagram()
			if err != nil {
				return
			}
			if err := dc.EncodeProxy(domain.ProxyUDP{Destination: srcAddr, Payload: payload}); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		for {
			pkt, err := dc.DecodeAgentPacket()
			if err != nil {
				return
			}
			udp, ok := pkt.(domain.AgentUDP)
			if !ok {
				logger.Debug("relay: fatal invalid agent data type for udp tunnel", zap.Error(ErrInvalidProxyDataType))
				return
			}
			if err := dest.WriteDatagram(udp.Destination, udp.Payload); err != nil {
				return
			}
		}
	}()

	<-done
	<-done
}
