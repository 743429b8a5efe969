package suggest

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Signature computes a structural fingerprint of the current candidate set:
// the sorted tuple set {tag, subtype, id, name, visible} over all fields.
// Equal candidate sets (by these attributes) always produce equal signatures.
// It is used purely for change detection between rescans, never for identity;
// handles serve that purpose.
func Signature(fields []FieldDescriptor) string {
	tuples := make([]string, 0, len(fields))
	for _, fd := range fields {
		vis := "0"
		if fd.Visible {
			vis = "1"
		}
		tuples = append(tuples,
			fd.Tag+"|"+fd.Subtype+"|"+fd.ID+"|"+fd.Name+"|"+vis)
	}
	sort.Strings(tuples)

	h := sha256.Sum256([]byte(strings.Join(tuples, ";")))
	return fmt.Sprintf("%x", h[:16]) // 128-bit fingerprint is enough
}
