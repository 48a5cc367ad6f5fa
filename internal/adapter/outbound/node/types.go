// Package node is the HTTP client for the remote id-node. It is an
// explicit client instance: base URL and token source are injected, so
// "which node and token is this call using" is answerable by inspection.
package node

import (
	"encoding/json"
	"time"
)

// TokenSource supplies the current bearer token. ok is false when no usable
// token is held, in which case authenticated calls fail fast with
// ErrUnauthorized instead of sending a request doomed to 401.
type TokenSource interface {
	BearerToken() (token string, ok bool)
}

// Metrics records node request outcomes. Implementations live in the
// observability package; the zero value of the client records nothing.
type Metrics interface {
	ObserveRequest(endpoint, outcome string, seconds float64)
}

// authnResponse is the authentication response. expiresAt arrives as
// epoch milliseconds from current nodes and as RFC 3339 from older ones.
type authnResponse struct {
	Token     string          `json:"token"`
	ExpiresAt json.RawMessage `json:"expiresAt"`
}

// PresentationPreview describes what a verifier is asking for and which of
// our credentials could satisfy it.
type PresentationPreview struct {
	Verifier string              `json:"verifier"`
	Queries  []PresentationQuery `json:"queries"`
}

// PresentationQuery is one query within a presentation request.
type PresentationQuery struct {
	ID         string      `json:"id,omitempty"`
	Purpose    string      `json:"purpose,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Candidate is a credential the node considers able to satisfy a query.
// Index is positional within the node's stored set; some nodes expose no
// stable credential IDs at all.
type Candidate struct {
	Index  int      `json:"index"`
	Type   []string `json:"type,omitempty"`
	Issuer string   `json:"issuer,omitempty"`
	Claims []string `json:"claims,omitempty"`
}

// SubmitRequest submits a presentation response.
type SubmitRequest struct {
	Request                 string `json:"request"`
	Selections              []int  `json:"selections,omitempty"`
	SkipX509ChainValidation bool   `json:"skipX509ChainValidation,omitempty"`
}

type submitResponse struct {
	RedirectURI string `json:"redirectUri"`
}

type createRequestResponse struct {
	InvocationURL string `json:"invocationUrl"`
}

// Key is a signing key held by the node for this wallet.
type Key struct {
	ID        string    `json:"id"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}
