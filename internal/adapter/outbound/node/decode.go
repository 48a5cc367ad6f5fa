package node

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neoke/pocket/internal/domain/credential"
)

// parseExpiresAt accepts the two expiresAt encodings seen in the wild:
// epoch milliseconds (number) and RFC 3339 (string).
func parseExpiresAt(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// tokenExpiryFromJWT recovers the expiry from the token's exp claim. The
// signature is deliberately not verified: the node is the issuer and the
// claim is only used for local scheduling, never for authorization.
func tokenExpiryFromJWT(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}

// decodeReceivedCredential probes the known response nestings of the
// receive endpoint, newest first, and fails closed on anything else.
func decodeReceivedCredential(raw json.RawMessage) (*credential.Credential, error) {
	var wrapped struct {
		Credential *credential.Credential `json:"credential"`
		Data       *struct {
			Credential *credential.Credential `json:"credential"`
		} `json:"data"`
		Credentials []credential.Credential `json:"credentials"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		switch {
		case wrapped.Credential != nil && looksLikeCredential(wrapped.Credential):
			return wrapped.Credential, nil
		case wrapped.Data != nil && wrapped.Data.Credential != nil && looksLikeCredential(wrapped.Data.Credential):
			return wrapped.Data.Credential, nil
		case len(wrapped.Credentials) > 0 && looksLikeCredential(&wrapped.Credentials[0]):
			return &wrapped.Credentials[0], nil
		}
	}

	// Oldest nodes answer with the bare credential object.
	var bare credential.Credential
	if err := json.Unmarshal(raw, &bare); err == nil && looksLikeCredential(&bare) {
		return &bare, nil
	}
	return nil, &ShapeError{Endpoint: pathReceive}
}

// looksLikeCredential distinguishes a credential object from an envelope
// that merely decoded without error.
func looksLikeCredential(c *credential.Credential) bool {
	return c.ID != "" || c.DocType != "" || len(c.Type) > 0 ||
		len(c.Namespaces) > 0 || len(c.CredentialSubject) > 0
}
