package rpc

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AuthTokenLength is the size of a generated token in bytes. Tokens are
// stored and sent hex encoded.
const AuthTokenLength = 32

// loadOrCreateAuthToken returns the token stored at path, writing a fresh
// one when the file is missing or does not hold a valid token.
func loadOrCreateAuthToken(path string) ([]byte, error) {
	if token, err := readTokenFile(path); err == nil && len(token) == AuthTokenLength {
		log.WithField("path", path).Debug("loaded auth token")
		return token, nil
	} else if err == nil || !os.IsNotExist(err) {
		log.WithField("path", path).Warn("auth token file unusable, replacing it")
	}

	token := make([]byte, AuthTokenLength)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating auth dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(token)), 0o600); err != nil {
		return nil, fmt.Errorf("writing token: %w", err)
	}
	log.WithField("path", path).Info("generated auth token")
	return token, nil
}

func readTokenFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeToken(string(data))
}

// clientToken resolves the token a client sends: an explicit hex token
// wins over the file. Neither means no auth.
func clientToken(token, file string) ([]byte, error) {
	switch {
	case token != "":
		return decodeToken(token)
	case file != "":
		b, err := readTokenFile(file)
		if err != nil {
			return nil, fmt.Errorf("auth file: %w", err)
		}
		return b, nil
	}
	return nil, nil
}

func decodeToken(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid auth token: %w", err)
	}
	return b, nil
}

func tokenMatches(got, want []byte) bool {
	return subtle.ConstantTimeCompare(got, want) == 1
}
