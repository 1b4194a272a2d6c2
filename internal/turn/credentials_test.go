package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueComputesCoturnRestCredential(t *testing.T) {
	fixed := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	b := NewBroker([]string{"turn:turn.example.com:3478"}, "supersecret", 10*time.Minute)
	b.now = func() time.Time { return fixed }

	creds, err := b.Issue("user-42")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wantUsername := "1787832600:user-42" // fixed + 10m, unix
	if creds.Username != wantUsername {
		t.Errorf("username = %q, want %q", creds.Username, wantUsername)
	}

	mac := hmac.New(sha1.New, []byte("supersecret"))
	mac.Write([]byte(wantUsername))
	wantCredential := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if creds.Credential != wantCredential {
		t.Errorf("credential = %q, want %q", creds.Credential, wantCredential)
	}

	if !creds.ExpiresAt.Equal(fixed.Add(10 * time.Minute)) {
		t.Errorf("expiresAt = %v, want %v", creds.ExpiresAt, fixed.Add(10*time.Minute))
	}
}

func TestIssueFailsLoudlyWithoutSecret(t *testing.T) {
	b := NewBroker([]string{"turn:turn.example.com:3478"}, "", time.Minute)
	if _, err := b.Issue("user-1"); !errors.Is(err, ErrIssuanceUnavailable) {
		t.Fatalf("Issue without secret: got %v, want ErrIssuanceUnavailable", err)
	}
}

func TestIssueRejectsEmptyIdentity(t *testing.T) {
	b := NewBroker(nil, "secret", time.Minute)
	if _, err := b.Issue("  "); err == nil {
		t.Fatal("Issue with blank identity succeeded, want error")
	}
}

func TestPublicServersAreCredentialFree(t *testing.T) {
	configs := []struct {
		name   string
		uris   []string
		secret string
	}{
		{"no servers", nil, ""},
		{"stun only", []string{"stun:stun.example.com:3478"}, ""},
		{"turn with secret configured", []string{"turn:turn.example.com:3478"}, "supersecret"},
		{"mixed", []string{"stun:a:3478", "turn:b:3478", "turns:c:5349"}, "supersecret"},
	}

	for _, tc := range configs {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBroker(tc.uris, tc.secret, time.Minute)
			data, err := json.Marshal(b.PublicServers())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			lowered := strings.ToLower(string(data))
			for _, forbidden := range []string{"username", "credential", tc.secret} {
				if forbidden == "" {
					continue
				}
				if strings.Contains(lowered, strings.ToLower(forbidden)) {
					t.Errorf("public server list contains %q: %s", forbidden, data)
				}
			}
		})
	}
}

func TestPublicServersCopyURIs(t *testing.T) {
	uris := []string{"stun:stun.example.com:3478"}
	b := NewBroker(uris, "", time.Minute)

	servers := b.PublicServers()
	servers[0].URLs[0] = "mutated"

	if got := b.PublicServers()[0].URLs[0]; got != "stun:stun.example.com:3478" {
		t.Errorf("broker URI mutated through returned slice: %q", got)
	}
}
