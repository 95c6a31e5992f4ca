// Package crypto implements the RSA keypair handling, AES-256-ECB/PKCS7
// payload cipher, and the per-auth-token RSA key holder described in
// spec §4.1/§4.2. AES-ECB is deliberately used here, matching the wire
// format the spec documents (see §9's design note on the mode).
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// KeyPair holds the local private key (for decrypting messages addressed
// to this process) and the remote peer's public key (for encrypting
// messages addressed to that peer).
type KeyPair struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// LoadKeyPair reads a PEM-encoded RSA private key and a PEM-encoded RSA
// public key from disk and pairs them.
func LoadKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	priv, err := loadPrivateKey(privatePath)
	if err != nil {
		return nil, fmt.Errorf("crypto: load private key %s: %w", privatePath, err)
	}
	pub, err := loadPublicKey(publicPath)
	if err != nil {
		return nil, fmt.Errorf("crypto: load public key %s: %w", publicPath, err)
	}
	return &KeyPair{private: priv, public: pub}, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported private key encoding: %w", err)
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM block does not contain an RSA private key")
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported public key encoding: %w", err)
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("PEM block does not contain an RSA public key")
	}
	return key, nil
}

// Decrypt unwraps bytes encrypted under this KeyPair's public key, using
// the paired local private key.
func (k *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.private, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa decrypt: %w", err)
	}
	return plaintext, nil
}

// Encrypt wraps bytes under the remote peer's public key.
func (k *KeyPair) Encrypt(plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, k.public, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa encrypt: %w", err)
	}
	return ciphertext, nil
}
