package codec

import "errors"

// Sentinel errors for the codec's own framing and variant checks (§4.1/§7):
// a frame shorter than its declared length, an oversized length header, an
// unknown tag byte, or an unexpected packet variant, each wrapped with more
// context via %w. RSA, AES and gob failures are not mapped to these
// sentinels; they are returned wrapping the underlying error instead.
var (
	ErrShortFrame        = errors.New("codec: frame shorter than declared length")
	ErrFrameTooLarge     = errors.New("codec: frame length exceeds maximum")
	ErrUnknownTag        = errors.New("codec: unknown control tag byte")
	ErrUnexpectedVariant = errors.New("codec: unexpected packet variant")
)
