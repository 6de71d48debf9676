// Package json decodes JSON text into an order-preserving document.Node.
//
// encoding/json's map decoding loses key order, which every downstream column
// and row sequence depends on, so the decoder is driven token by token.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"docnorm/internal/document"
)

// ctxCheckEvery bounds how many values are materialized between context checks.
const ctxCheckEvery = 4096

// Parse decodes exactly one JSON value from r.
//
// Edge cases:
//   - Any JSON value is accepted at the root, including bare scalars.
//   - Numbers become int64 when integral and in range, float64 otherwise.
//   - Non-whitespace after the root value is an error.
//   - Empty input is an error (io.ErrUnexpectedEOF).
//
// Errors:
//   - Syntax errors carry the decoder's message and byte offset when available.
//   - ctx cancellation returns ctx.Err().
func Parse(ctx context.Context, r io.Reader) (*document.Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	d := &decoder{ctx: ctx, dec: dec}

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("json: empty input: %w", io.ErrUnexpectedEOF)
		}
		return nil, d.wrap("read first token", err)
	}

	root, err := d.valueFromFirstToken(tok)
	if err != nil {
		return nil, err
	}

	// Anything but EOF after the root value is trailing garbage.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("json: unexpected data after top-level value at offset %d", dec.InputOffset())
		}
		return nil, d.wrap("read after top-level value", err)
	}
	return root, nil
}

type decoder struct {
	ctx   context.Context
	dec   *json.Decoder
	count int
}

func (d *decoder) wrap(what string, err error) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return fmt.Errorf("json: %s: %w (offset %d)", what, err, se.Offset)
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("json: %s: %w", what, err)
}

func (d *decoder) tick() error {
	d.count++
	if d.count%ctxCheckEvery != 0 {
		return nil
	}
	select {
	case <-d.ctx.Done():
		return d.ctx.Err()
	default:
		return nil
	}
}

// valueFromFirstToken builds the Node for the current value, given its first
// token has already been read.
func (d *decoder) valueFromFirstToken(tok json.Token) (*document.Node, error) {
	if err := d.tick(); err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return document.Scalar(tok), nil
	}

	switch delim {
	case '{':
		var fields []document.Field
		for d.dec.More() {
			kt, err := d.dec.Token()
			if err != nil {
				return nil, d.wrap("read object key", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("json: object key not a string (got %T)", kt)
			}
			vt, err := d.dec.Token()
			if err != nil {
				return nil, d.wrap("read object value", err)
			}
			v, err := d.valueFromFirstToken(vt)
			if err != nil {
				return nil, err
			}
			fields = append(fields, document.F(k, v))
		}
		if err := d.expectEnd('}'); err != nil {
			return nil, err
		}
		return document.Object(fields...), nil

	case '[':
		var items []*document.Node
		for d.dec.More() {
			vt, err := d.dec.Token()
			if err != nil {
				return nil, d.wrap("read array element", err)
			}
			v, err := d.valueFromFirstToken(vt)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		if err := d.expectEnd(']'); err != nil {
			return nil, err
		}
		return document.Collection(items...), nil

	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", delim)
	}
}

func (d *decoder) expectEnd(want json.Delim) error {
	end, err := d.dec.Token()
	if err != nil {
		return d.wrap(fmt.Sprintf("read %q", want), err)
	}
	if end != want {
		return fmt.Errorf("json: expected %q, got %v", want, end)
	}
	return nil
}
