package normalize

import (
	"context"
	"strings"
	"testing"

	"docnorm/internal/document"
	jsonparser "docnorm/internal/parser/json"
)

func mustParse(t *testing.T, src string) *document.Node {
	t.Helper()
	n, err := jsonparser.Parse(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return n
}
