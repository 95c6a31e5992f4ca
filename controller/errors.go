package controller

import "errors"

// Client-session error kinds from §7: fatal to the owning client
// connection, no retry.
var (
	ErrUnsupportedSocks4         = errors.New("controller: socks4 not supported")
	ErrUnsupportedSocksV5Command = errors.New("controller: socks5 command not supported, only CONNECT")
	ErrUnknownClientProtocol     = errors.New("controller: unrecognized client protocol")
	ErrInvalidProxyDataType      = errors.New("controller: unexpected data packet variant for this tunnel type")
)
