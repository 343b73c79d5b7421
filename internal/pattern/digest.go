package pattern

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// DomainPayload separates payload digests from any other hash in the system.
// The version suffix leaves room for changing the algorithm.
const DomainPayload = "dojo/pattern-payload/v1"

// Digest computes the content identity of a payload within a field.
//
// Format: SHA256(domain 0x00 field 0x00 NFC(payload)). NFC normalization
// makes canonically equivalent Unicode spellings compare equal; no other
// rewriting (case, whitespace) is applied because payloads are opaque.
func Digest(field Field, payload string) string {
	h := sha256.New()
	h.Write([]byte(DomainPayload))
	h.Write([]byte{0x00})
	h.Write([]byte(field))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(payload)))
	return hex.EncodeToString(h.Sum(nil))
}
