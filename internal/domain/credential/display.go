package credential

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// fallbackPalette are the background colors used for synthesized display
// metadata. Color choice is deterministic per credential classification so
// the same credential always renders the same card.
var fallbackPalette = []string{
	"#1D3557", "#2A9D8F", "#6D597A", "#9C6644", "#264653", "#5F0F40",
}

// SynthesizeDisplay builds deterministic fallback display metadata for a
// credential that carries none of its own.
func SynthesizeDisplay(c *Credential) *DisplayMetadata {
	key := c.DocType
	if key == "" {
		key = primaryType(c.Type)
	}
	if key == "" {
		key = "Credential"
	}
	return &DisplayMetadata{
		Label:           humanizeTag(key),
		BackgroundColor: fallbackPalette[xxhash.Sum64String(key)%uint64(len(fallbackPalette))],
		TextColor:       "#FFFFFF",
	}
}

// primaryType picks the most specific type tag, skipping the generic
// "VerifiableCredential" marker.
func primaryType(types []string) string {
	for i := len(types) - 1; i >= 0; i-- {
		if types[i] != "VerifiableCredential" {
			return types[i]
		}
	}
	return ""
}

// humanizeTag turns a type tag or mDoc docType into a display label:
// "org.iso.18013.5.1.mDL" -> "mDL", "EmployeeCredential" -> "Employee Credential".
func humanizeTag(tag string) string {
	if i := strings.LastIndex(tag, "."); i >= 0 {
		return tag[i+1:]
	}
	var b strings.Builder
	for i, r := range tag {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(tag[i-1])
			if prev < 'A' || prev > 'Z' {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
