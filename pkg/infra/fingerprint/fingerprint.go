package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Identity names one traffic source: the client IP joined with a short
// hash of its User-Agent, so the same address running two different
// tools is tracked as two clients.
type Identity struct {
	IP        string
	UserAgent string
}

func (i Identity) ID() string {
	return i.IP + ":" + hashUserAgent(i.UserAgent)
}

// IPFromID recovers the address part of an identity string.
func IPFromID(id string) (string, error) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", errors.New("invalid identity format")
	}
	return id[:idx], nil
}

func hashUserAgent(ua string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ua)))
	return hex.EncodeToString(sum[:])[:8]
}
