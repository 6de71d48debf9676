// Package xml converts XML text into the same object/collection shape a JSON
// document would have.
//
// Mapping rules:
//   - The root element becomes the single key of the returned object.
//   - Attributes become keys named after the attribute.
//   - Child elements become keys; repeated sibling names collapse into a
//     collection in document order.
//   - An element holding only text becomes a string scalar (trimmed).
//   - Non-blank text next to attributes or child elements is kept under "value".
//   - An empty element becomes an empty object.
package xml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docnorm/internal/document"
)

// TextKey is the key used for text content of elements that also carry
// attributes or children.
const TextKey = "value"

// Parse decodes one XML document from r.
//
// Errors:
//   - Returns the decoder's syntax error for malformed input.
//   - Returns an error if the input has no root element.
func Parse(ctx context.Context, r io.Reader) (*document.Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("xml: no root element")
			}
			return nil, fmt.Errorf("xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		b := &builder{ctx: ctx, dec: dec}
		root, err := b.element(start)
		if err != nil {
			return nil, err
		}
		if err := trailing(dec); err != nil {
			return nil, err
		}
		return document.Object(document.F(start.Name.Local, root)), nil
	}
}

// trailing accepts only comments, processing instructions and whitespace
// after the root element.
func trailing(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return errors.New("xml: text after root element")
			}
		case xml.StartElement:
			return fmt.Errorf("xml: second root element <%s>", t.Name.Local)
		}
	}
}

type builder struct {
	ctx      context.Context
	dec      *xml.Decoder
	elements int
}

// member is one key of an element under construction; multi marks keys that
// have already been promoted to a collection.
type member struct {
	key   string
	items []*document.Node
	multi bool
}

func (b *builder) element(start xml.StartElement) (*document.Node, error) {
	b.elements++
	if b.elements%1024 == 0 {
		if err := b.ctx.Err(); err != nil {
			return nil, err
		}
	}

	var (
		members []*member
		byKey   = map[string]*member{}
		text    strings.Builder
	)
	add := func(key string, v *document.Node, fromElement bool) {
		if m, ok := byKey[key]; ok && fromElement {
			m.items = append(m.items, v)
			m.multi = true
			return
		}
		if m, ok := byKey[key]; ok {
			m.items = []*document.Node{v}
			return
		}
		m := &member{key: key, items: []*document.Node{v}}
		byKey[key] = m
		members = append(members, m)
	}

	for _, a := range start.Attr {
		add(attrName(a.Name), document.Scalar(a.Value), false)
	}

	for {
		tok, err := b.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("xml: unexpected EOF in <%s>: %w", start.Name.Local, io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := b.element(t)
			if err != nil {
				return nil, err
			}
			add(t.Name.Local, child, true)

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			return finish(members, strings.TrimSpace(text.String())), nil
		}
	}
}

func finish(members []*member, text string) *document.Node {
	if len(members) == 0 {
		if text != "" {
			return document.Scalar(text)
		}
		return document.Object()
	}

	fields := make([]document.Field, 0, len(members)+1)
	for _, m := range members {
		if m.multi {
			fields = append(fields, document.F(m.key, document.Collection(m.items...)))
			continue
		}
		fields = append(fields, document.F(m.key, m.items[0]))
	}
	if text != "" {
		fields = append(fields, document.F(TextKey, document.Scalar(text)))
	}
	return document.Object(fields...)
}

// attrName keeps namespace declarations recognizable and drops other
// namespace prefixes.
func attrName(n xml.Name) string {
	if n.Space == "xmlns" {
		return "xmlns:" + n.Local
	}
	return n.Local
}
