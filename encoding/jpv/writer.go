// Package jpv writes token streams in the JPV format, one line per scalar
// value, each line giving the path to the value and the value itself:
//
//	$["properties"]["tags"][0] = "red"
//
// Empty objects and arrays are written as {} and [].
package jpv

import (
	"strconv"

	"github.com/arnodel/featurestream/internal/format"
	"github.com/arnodel/featurestream/token"
)

// A Writer outputs the tokens put to it in the JPV format using Printer.  Like
// json.Writer it panics with a *format.PrinterError when the output fails.
type Writer struct {
	format.Printer
	Colorizer *format.Colorizer

	stack []frame // keeps track of the current path
}

var _ token.WriteStream = &Writer{}

type frame struct {
	array bool
	count int
	key   *token.Scalar
}

func NewWriter(p format.Printer, c *format.Colorizer) *Writer {
	return &Writer{Printer: p, Colorizer: c}
}

// Depth returns the number of containers not yet closed.
func (w *Writer) Depth() int {
	return len(w.stack)
}

func (w *Writer) Put(tok token.Token) {
	switch x := tok.(type) {
	case *token.StartObject:
		w.stack = append(w.stack, frame{})
	case *token.StartArray:
		w.stack = append(w.stack, frame{array: true})
	case *token.EndObject:
		w.end(emptyObjectBytes)
	case *token.EndArray:
		w.end(emptyArrayBytes)
	case *token.Scalar:
		if n := len(w.stack); n > 0 && !w.stack[n-1].array && w.stack[n-1].key == nil {
			w.stack[n-1].key = x
			return
		}
		w.writePathWithValue(x, x.Bytes)
		w.done()
	default:
		panic("invalid token")
	}
}

func (w *Writer) end(emptyBytes []byte) {
	n := len(w.stack)
	if n == 0 {
		panic("unbalanced close")
	}
	fr := w.stack[n-1]
	w.stack = w.stack[:n-1]
	if fr.count == 0 {
		w.writePathWithValue(nil, emptyBytes)
	}
	w.done()
}

// done records that the current item is complete.
func (w *Writer) done() {
	n := len(w.stack)
	if n == 0 {
		w.Reset()
		return
	}
	top := &w.stack[n-1]
	top.count++
	top.key = nil
}

func (w *Writer) writePathWithValue(scalar *token.Scalar, value []byte) {
	w.PrintBytes(pathRootBytes)
	for _, fr := range w.stack {
		w.PrintBytes(openIndexBytes)
		if fr.array {
			w.PrintBytes([]byte(strconv.Itoa(fr.count)))
		} else {
			w.Colorizer.PrintKey(w.Printer, fr.key)
		}
		w.PrintBytes(closeIndexBytes)
	}
	w.PrintBytes(pathValueSeparatorBytes)
	if scalar != nil {
		w.Colorizer.PrintBytes(w.Printer, scalar, value)
	} else {
		w.PrintBytes(value)
	}
	w.NewLine()
}

var (
	pathValueSeparatorBytes = []byte(" = ")
	pathRootBytes           = []byte("$")
	openIndexBytes          = []byte("[")
	closeIndexBytes         = []byte("]")
	emptyObjectBytes        = []byte("{}")
	emptyArrayBytes         = []byte("[]")
)
