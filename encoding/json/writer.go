// Package json writes token streams as JSON documents.
package json

import (
	"github.com/arnodel/featurestream/internal/format"
	"github.com/arnodel/featurestream/token"
)

// A Writer outputs the tokens put to it as JSON, one token at a time, using
// Printer for formatting.  It assumes that the stream is well-formed and may
// panic if that is not the case.
//
// Printer errors are not returned: they panic with a *format.PrinterError,
// which the caller is expected to catch with format.CatchPrinterError.
type Writer struct {
	format.Printer
	Colorizer *format.Colorizer

	// Compact omits the space between a key and its value.
	Compact bool

	stack    []frame
	afterKey bool
}

var _ token.WriteStream = &Writer{}

type frame struct {
	array bool
	count int
}

// NewWriter returns a Writer printing to p, without the space after colons
// when compact is true.
func NewWriter(p format.Printer, c *format.Colorizer, compact bool) *Writer {
	return &Writer{Printer: p, Colorizer: c, Compact: compact}
}

// Depth returns the number of containers not yet closed.
func (w *Writer) Depth() int {
	return len(w.stack)
}

func (w *Writer) Put(tok token.Token) {
	switch x := tok.(type) {
	case *token.StartObject:
		w.beginValue()
		w.PrintBytes(openObjectBytes)
		w.stack = append(w.stack, frame{})
	case *token.StartArray:
		w.beginValue()
		w.PrintBytes(openArrayBytes)
		w.stack = append(w.stack, frame{array: true})
	case *token.EndObject:
		w.end(closeObjectBytes)
	case *token.EndArray:
		w.end(closeArrayBytes)
	case *token.Scalar:
		if w.expectingKey() {
			w.beginItem()
			w.Colorizer.PrintKey(w.Printer, x)
			if w.Compact {
				w.PrintBytes(compactKeyValueSeparatorBytes)
			} else {
				w.PrintBytes(keyValueSeparatorBytes)
			}
			w.afterKey = true
			return
		}
		w.beginValue()
		w.Colorizer.PrintScalar(w.Printer, x)
		if len(w.stack) == 0 {
			w.endDocument()
		}
	default:
		panic("invalid token")
	}
}

func (w *Writer) expectingKey() bool {
	n := len(w.stack)
	return n > 0 && !w.stack[n-1].array && !w.afterKey
}

// beginValue prints what comes before a value: nothing after a key, else the
// item separator.
func (w *Writer) beginValue() {
	if w.afterKey {
		w.afterKey = false
		return
	}
	w.beginItem()
}

func (w *Writer) beginItem() {
	n := len(w.stack)
	if n == 0 {
		return
	}
	top := &w.stack[n-1]
	if top.count > 0 {
		w.PrintBytes(itemSeparatorBytes)
		w.NewLine()
	} else {
		w.Indent()
	}
	top.count++
}

func (w *Writer) end(closeBytes []byte) {
	n := len(w.stack)
	if n == 0 {
		panic("unbalanced close")
	}
	if w.stack[n-1].count > 0 {
		w.Dedent()
	}
	w.stack = w.stack[:n-1]
	w.PrintBytes(closeBytes)
	if n == 1 {
		w.endDocument()
	}
}

func (w *Writer) endDocument() {
	w.NewLine()
	w.Reset()
}

var (
	openObjectBytes               = []byte("{")
	closeObjectBytes              = []byte("}")
	openArrayBytes                = []byte("[")
	closeArrayBytes               = []byte("]")
	itemSeparatorBytes            = []byte(",")
	keyValueSeparatorBytes        = []byte(": ")
	compactKeyValueSeparatorBytes = []byte(":")
)
