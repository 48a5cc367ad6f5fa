// Package credential defines the wallet's credential model and the
// reconciliation of node-reported credentials with the local cache.
package credential

import (
	"fmt"
	"time"
)

// Status is the lifecycle status of a credential as reported by the node.
type Status string

const (
	// StatusActive means the credential is valid and usable.
	StatusActive Status = "active"
	// StatusSuspended means the issuer has temporarily suspended the credential.
	StatusSuspended Status = "suspended"
	// StatusRevoked means the issuer has permanently revoked the credential.
	StatusRevoked Status = "revoked"
	// StatusExpired means the credential's validity period has ended.
	StatusExpired Status = "expired"
)

// Credential is a verifiable credential held by the wallet.
//
// Namespaces carries mDoc-style claims grouped by namespace;
// CredentialSubject carries flat JSON-LD-style claims. A credential
// populates one or the other depending on its format.
type Credential struct {
	// ID is the stable identifier. Server-assigned when the node supplies
	// one, otherwise synthesized from docType and list position.
	ID string `json:"id"`

	// Type are the credential type tags (e.g. "VerifiableCredential",
	// "EmployeeCredential").
	Type []string `json:"type,omitempty"`

	// DocType is the mDoc document type (e.g. "org.iso.18013.5.1.mDL").
	DocType string `json:"docType,omitempty"`

	// Issuer identifies who issued the credential.
	Issuer string `json:"issuer,omitempty"`

	// IssuanceDate and ExpirationDate are kept in the node's wire form
	// (RFC 3339 when present); server formats vary by deployment.
	IssuanceDate   string `json:"issuanceDate,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`

	// Status is the node-reported status. EffectiveStatus folds in
	// expiry computed at read time.
	Status Status `json:"status,omitempty"`

	// Namespaces holds mDoc claims grouped by namespace.
	Namespaces map[string]map[string]any `json:"namespaces,omitempty"`

	// CredentialSubject holds flat JSON-LD claims.
	CredentialSubject map[string]any `json:"credentialSubject,omitempty"`

	// Display carries presentation hints. May come from the node, or be
	// synthesized locally as a deterministic fallback.
	Display *DisplayMetadata `json:"displayMetadata,omitempty"`
}

// DisplayMetadata are optional presentation hints for a credential.
type DisplayMetadata struct {
	Label           string `json:"label,omitempty"`
	Description     string `json:"description,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	LogoURL         string `json:"logoUrl,omitempty"`
}

// SynthesizeID builds a stable positional identifier for nodes that only
// expose credentials by type and index.
func SynthesizeID(docType string, index int) string {
	if docType == "" {
		docType = "credential"
	}
	return fmt.Sprintf("%s-%d", docType, index)
}

// ExpiresAt parses the expiration date. Returns false when the credential
// has no expiration or the date is in a form we do not recognize.
func (c *Credential) ExpiresAt() (time.Time, bool) {
	if c.ExpirationDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, c.ExpirationDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EffectiveStatus returns the status to display, inferring expiry at read
// time. Revocation and suspension take precedence over computed expiry.
func (c *Credential) EffectiveStatus(now time.Time) Status {
	switch c.Status {
	case StatusRevoked, StatusSuspended:
		return c.Status
	}
	if exp, ok := c.ExpiresAt(); ok && now.After(exp) {
		return StatusExpired
	}
	if c.Status == "" {
		return StatusActive
	}
	return c.Status
}

// TypeOverlap reports whether two type tag lists share at least one tag
// beyond the generic "VerifiableCredential" marker.
func TypeOverlap(a, b []string) bool {
	for _, ta := range a {
		if ta == "VerifiableCredential" {
			continue
		}
		for _, tb := range b {
			if ta == tb {
				return true
			}
		}
	}
	return false
}
