package domain

import "encoding/gob"

// Encryption selects the per-direction session cipher negotiated during
// tunnel-init. Exactly one Encryption exists per direction per tunnel.
type Encryption interface {
	isEncryption()
}

// PlainEncryption carries bytes unmodified. Used only before a session key
// has been negotiated; no live tunnel should ever relay data under it.
type PlainEncryption struct{}

func (PlainEncryption) isEncryption() {}

// AesEncryption carries a 32-byte AES-256 session key, generated fresh for
// each tunnel by each side independently.
type AesEncryption struct {
	Key [32]byte
}

func (AesEncryption) isEncryption() {}

func init() {
	gob.Register(PlainEncryption{})
	gob.Register(AesEncryption{})
}
