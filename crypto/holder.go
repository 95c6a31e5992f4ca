package crypto

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RSAHolder maps an auth_token to the RSA keypair assigned to that user
// (§4.2). It is populated once at startup and is immutable afterward, so
// lookups are lock-free.
type RSAHolder struct {
	pairs map[string]*KeyPair
}

// LoadRSAHolder walks dir's immediate child directories, treating each as
// an auth_token whose keypair lives in localKeyFile (the local private
// key) and peerKeyFile (the remote peer's public key). Unreadable or
// malformed entries are logged and skipped; they never abort startup.
// Every skipped entry is still reported via the returned error (built with
// multierr) so the caller can decide whether to treat a partially loaded
// holder as fatal.
func LoadRSAHolder(dir, localKeyFile, peerKeyFile string, logger *zap.Logger) (*RSAHolder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("crypto: read rsa dir %s: %w", dir, err)
	}
	holder := &RSAHolder{pairs: make(map[string]*KeyPair)}
	var errs error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		token := entry.Name()
		userDir := filepath.Join(dir, token)
		kp, err := LoadKeyPair(filepath.Join(userDir, localKeyFile), filepath.Join(userDir, peerKeyFile))
		if err != nil {
			logger.Warn("skipping malformed rsa key entry", zap.String("auth_token", token), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("token %s: %w", token, err))
			continue
		}
		holder.pairs[token] = kp
	}
	return holder, errs
}

// Lookup returns the keypair assigned to authToken, if any.
func (h *RSAHolder) Lookup(authToken string) (*KeyPair, bool) {
	kp, ok := h.pairs[authToken]
	return kp, ok
}
