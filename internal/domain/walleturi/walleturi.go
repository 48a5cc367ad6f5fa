// Package walleturi classifies the URIs a wallet is handed: credential
// offers, presentation requests, or junk.
package walleturi

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the recognized URI category.
type Kind int

const (
	// Unknown means the URI matched no recognized scheme.
	Unknown Kind = iota
	// CredentialOffer routes to the OpenID4VCI receive flow.
	CredentialOffer
	// PresentationRequest routes to the OpenID4VP presentation flow.
	PresentationRequest
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case CredentialOffer:
		return "credential-offer"
	case PresentationRequest:
		return "presentation-request"
	default:
		return "unknown"
	}
}

// ErrUnrecognized is returned for URIs outside the recognized schemes.
var ErrUnrecognized = errors.New("unrecognized wallet URI")

// schemes maps URI scheme prefixes to their flow.
var schemes = map[string]Kind{
	"openid-credential-offer": CredentialOffer,
	"openid4vp":               PresentationRequest,
}

// Classify returns the flow a URI belongs to. Surrounding whitespace (as
// pasted from a scanner or clipboard) is tolerated; anything without a
// recognized scheme is rejected.
func Classify(uri string) (Kind, error) {
	trimmed := strings.TrimSpace(uri)
	scheme, _, ok := strings.Cut(trimmed, "://")
	if !ok {
		return Unknown, fmt.Errorf("%w: %q", ErrUnrecognized, uri)
	}
	kind, ok := schemes[strings.ToLower(scheme)]
	if !ok {
		return Unknown, fmt.Errorf("%w: scheme %q", ErrUnrecognized, scheme)
	}
	return kind, nil
}
