package format

import (
	"github.com/arnodel/featurestream/token"
	"github.com/fatih/color"
)

// A Colorizer prints scalars wrapped in terminal color codes.  A nil
// *Colorizer prints scalars verbatim.
type Colorizer struct {
	KeyColor     *color.Color
	ScalarColors [token.Raw + 1]*color.Color
}

// NewDefaultColorizer returns the colors used by cmd/fp on a terminal.  The
// colors are forced on, whether or not the process output is a terminal:
// deciding that is the caller's business.
func NewDefaultColorizer() *Colorizer {
	c := &Colorizer{
		KeyColor: color.New(color.FgBlue, color.Bold),
		ScalarColors: [token.Raw + 1]*color.Color{
			token.Null:    color.New(color.FgHiBlack),
			token.Boolean: color.New(color.FgYellow),
			token.Number:  color.New(color.FgCyan),
			token.String:  color.New(color.FgGreen),
			token.Raw:     color.New(color.FgMagenta),
		},
	}
	c.KeyColor.EnableColor()
	for _, col := range c.ScalarColors {
		col.EnableColor()
	}
	return c
}

func (c *Colorizer) scalarColor(scalar *token.Scalar) *color.Color {
	if scalar.IsKey() {
		return c.KeyColor
	}
	return c.ScalarColors[scalar.Type()]
}

func (c *Colorizer) PrintScalar(p Printer, scalar *token.Scalar) {
	c.PrintBytes(p, scalar, scalar.Bytes)
}

// PrintBytes prints b in the color of scalar.
func (c *Colorizer) PrintBytes(p Printer, scalar *token.Scalar, b []byte) {
	if c == nil {
		p.PrintBytes(b)
		return
	}
	col := c.scalarColor(scalar)
	if col == nil {
		p.PrintBytes(b)
		return
	}
	p.PrintBytes([]byte(col.Sprint(string(b))))
}

// PrintKey prints scalar in the key color, whether or not it is flagged as a
// key.
func (c *Colorizer) PrintKey(p Printer, scalar *token.Scalar) {
	if c == nil || c.KeyColor == nil {
		p.PrintBytes(scalar.Bytes)
		return
	}
	p.PrintBytes([]byte(c.KeyColor.Sprint(string(scalar.Bytes))))
}
