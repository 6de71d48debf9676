package table

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// HashOptions controls RowHash canonicalization.
type HashOptions struct {
	// Separator between "name=value" components. Defaults to ASCII Unit
	// Separator (0x1f).
	Separator string

	// TrimSpace trims string values before hashing.
	TrimSpace bool
}

// RowHash computes a deterministic SHA-256 fingerprint of row over columns, as
// a lowercase hex string of length 64.
//
// Canonical form:
//   - Components are "name=value", in the given column order.
//   - Missing and nil values encode as a single NUL byte, so missing differs
//     from "".
//   - Numbers use strconv's shortest representation; bools are true/false.
//
// The loader stores the hash in an optional row_hash column so repeated loads
// of the same document can be compared cheaply.
func RowHash(row Row, columns []string, opt HashOptions) string {
	sep := opt.Separator
	if sep == "" {
		sep = "\x1f"
	}

	var b strings.Builder
	b.Grow(len(columns) * 20)

	for i, c := range columns {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(c)
		b.WriteByte('=')

		v, ok := row[c]
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, v, opt.TrimSpace)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case string:
		if trimSpace && HasEdgeSpace(t) {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	default:
		b.WriteString(fmt.Sprint(t))
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// hot paths skip strings.TrimSpace allocations for already-clean values.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isASCIISpace(s[0]) || isASCIISpace(s[len(s)-1])
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
