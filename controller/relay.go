package controller

import (
	"io"

	"go.uber.org/zap"
)

// relayTCP implements §4.5.3's full-duplex splice, generalized from the
// teacher's identical io.Copy-plus-paired-Close idiom in
// boost.go/normal.go/regex.go/roundrobin.go to wrap each direction in the
// appropriate data-packet codec instead of copying raw bytes.
//
// local is the client stream (Agent side) or the destination stream
// (Proxy side); encode/decode close over a *codec.DataCodec configured
// for the right side and packet direction. If initial is non-empty it is
// sent once before the first local read (the HTTP forwarding-request
// initial payload, §4.4.3). Each direction runs until its source ends or
// a write fails; relayTCP returns, closing local, only after both have
// ended, and neither direction half-closes its peer when it ends. The
// caller is responsible for closing its own remote connection once
// relayTCP returns.
func relayTCP(local io.ReadWriteCloser, encode func([]byte) error, decode func() ([]byte, error), bufSize int, initial []byte, logger *zap.Logger) {
	defer local.Close()

	if len(initial) > 0 {
		if err := encode(initial); err != nil {
			logger.Debug("relay: failed to forward initial payload", zap.Error(err))
			return
		}
	}

	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, bufSize)
		for {
			n, err := local.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				if werr := encode(chunk); werr != nil {
					logger.Debug("relay: encode failed", zap.Error(werr))
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		for {
			payload, err := decode()
			if err != nil {
				return
			}
			if _, werr := local.Write(payload); werr != nil {
				return
			}
		}
	}()

	<-done
	<-done
}
