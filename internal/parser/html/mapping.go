package html

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"docnorm/internal/document"
)

// Mapping is one record-mode extraction rule.
type Mapping struct {
	Selector string `json:"selector" mapstructure:"selector"`          // relative to the record element
	Extract  string `json:"extract" mapstructure:"extract"`            // "text" or "attr"
	Attr     string `json:"attr,omitempty" mapstructure:"attr"`        // used when Extract == "attr"
	Key      string `json:"key" mapstructure:"key"`                    // output key
	Match    string `json:"match,omitempty" mapstructure:"match"`      // optional regex; group 1 wins when present
	All      bool   `json:"all,omitempty" mapstructure:"all"`          // collect every match into a collection
}

// extractRecords builds one object per element matched by recordSelector, in
// DOM order. Records without any extracted value are skipped.
//
// Errors:
//   - Returns an error naming the mapping key when a Match regex is invalid.
func extractRecords(root *goquery.Selection, recordSelector string, mappings []Mapping) ([]*document.Node, error) {
	compiled := make([]*regexp.Regexp, len(mappings))
	for i, m := range mappings {
		re, err := compileOptionalRegex(m.Match, m.Key)
		if err != nil {
			return nil, err
		}
		compiled[i] = re
	}

	scopes := root
	if strings.TrimSpace(recordSelector) != "" {
		scopes = root.Find(recordSelector)
	}

	var out []*document.Node
	scopes.Each(func(_ int, rec *goquery.Selection) {
		if obj := recordFromSelection(rec, mappings, compiled); obj.Len() > 0 {
			out = append(out, obj)
		}
	})
	return out, nil
}

// recordFromSelection applies mappings relative to rec. Missing selectors are
// not errors; they simply produce no key.
func recordFromSelection(rec *goquery.Selection, mappings []Mapping, compiled []*regexp.Regexp) *document.Node {
	var fields []document.Field

	for i, m := range mappings {
		re := compiled[i]

		if m.All {
			var vals []*document.Node
			rec.Find(m.Selector).Each(func(_ int, sel *goquery.Selection) {
				if v := applyRegexFilter(extractOne(sel, m), re); v != "" {
					vals = append(vals, document.Scalar(v))
				}
			})
			if len(vals) > 0 {
				fields = append(fields, document.F(m.Key, document.Collection(vals...)))
			}
			continue
		}

		sel := rec.Find(m.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		if v := applyRegexFilter(extractOne(sel, m), re); v != "" {
			fields = append(fields, document.F(m.Key, document.Scalar(v)))
		}
	}

	return document.Object(fields...)
}

// extractOne returns "" for "no value"; unknown extract modes never produce one.
func extractOne(sel *goquery.Selection, m Mapping) string {
	switch m.Extract {
	case "", "text":
		return strings.TrimSpace(sel.Text())
	case "attr":
		if m.Attr == "" {
			return ""
		}
		val, _ := sel.Attr(m.Attr)
		return strings.TrimSpace(val)
	default:
		return ""
	}
}

func compileOptionalRegex(pattern, key string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("html: invalid regex for key=%q: %w", key, err)
	}
	return re, nil
}

// applyRegexFilter returns "" when re does not match, group 1 when the
// pattern has groups, and the whole match otherwise.
func applyRegexFilter(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}
