// Package turn issues short-lived TURN credentials using the coturn
// REST-API convention: username is "<unix expiry>:<identity>" and the
// credential is base64(HMAC-SHA1(shared secret, username)). The TURN server
// recomputes the HMAC, so no per-user state is exchanged and nothing is
// persisted on either side.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tanglechat/rtc-signaling/internal/models"
)

// ErrIssuanceUnavailable is returned when the broker has no shared secret
// configured. Callers must surface this loudly: silently falling back to
// no-TURN breaks connectivity behind symmetric NAT.
var ErrIssuanceUnavailable = errors.New("turn: credential issuance unavailable (no shared secret configured)")

// Credentials is an ephemeral TURN credential bound to one identity.
type Credentials struct {
	Username   string
	Credential string
	ExpiresAt  time.Time
	URIs       []string
}

// Broker computes per-request ephemeral credentials. The shared secret
// never leaves this package.
type Broker struct {
	uris   []string
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewBroker(uris []string, sharedSecret string, ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Broker{
		uris:   uris,
		secret: sharedSecret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// PublicServers returns the ICE server list safe for unauthenticated
// callers. The entries carry URLs only; the models.ICEServer type has no
// credential fields, so this path cannot leak them. TURN URIs are included
// so clients learn the relay addresses, but they are unusable without a
// credential obtained from Issue.
func (b *Broker) PublicServers() []models.ICEServer {
	if len(b.uris) == 0 {
		return []models.ICEServer{}
	}
	return []models.ICEServer{{URLs: append([]string(nil), b.uris...)}}
}

// Issue computes a fresh credential for the given authenticated identity.
func (b *Broker) Issue(identity string) (*Credentials, error) {
	if strings.TrimSpace(b.secret) == "" {
		return nil, ErrIssuanceUnavailable
	}
	if strings.TrimSpace(identity) == "" {
		return nil, fmt.Errorf("turn: empty identity")
	}

	expiresAt := b.now().Add(b.ttl)
	username := strconv.FormatInt(expiresAt.Unix(), 10) + ":" + identity

	mac := hmac.New(sha1.New, []byte(b.secret))
	mac.Write([]byte(username))

	return &Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiresAt:  expiresAt,
		URIs:       append([]string(nil), b.uris...),
	}, nil
}
