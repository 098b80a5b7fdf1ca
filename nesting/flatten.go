package nesting

import (
	"strconv"
	"strings"
)

// Flattening is a Strategy that writes everything nested deeper than FromDepth
// as fields of a single object, with keys made of the path to the value.
// Array elements are numbered from 1.  For example, with FromDepth 1 and
// Separator ".",
//
//	{"properties": {"address": {"city": "Brest"}, "tags": ["red", "tall"]}}
//
// is written as
//
//	{"properties": {"address.city": "Brest", "tags.1": "red", "tags.2": "tall"}}
type Flattening struct {
	Inner     Strategy
	Separator string
	FromDepth int

	frames []flatFrame
}

var _ Strategy = &Flattening{}

type flatFrame struct {
	name        string
	array       bool
	count       int
	passthrough bool
}

func NewFlattening(inner Strategy, separator string, fromDepth int) *Flattening {
	return &Flattening{Inner: inner, Separator: separator, FromDepth: fromDepth}
}

// flattening reports whether the next item is written under a flat key.
// Elements of an array that is written nested are never flattened themselves.
func (f *Flattening) flattening() bool {
	n := len(f.frames)
	if n < f.FromDepth {
		return false
	}
	return n == 0 || !(f.frames[n-1].passthrough && f.frames[n-1].array)
}

// elementName numbers a new element if the current container is an array.
func (f *Flattening) elementName(key string) string {
	n := len(f.frames)
	if n == 0 || !f.frames[n-1].array {
		return key
	}
	top := &f.frames[n-1]
	top.count++
	return strconv.Itoa(top.count)
}

func (f *Flattening) flatKey(name string) string {
	var b strings.Builder
	for _, fr := range f.frames {
		if fr.passthrough {
			continue
		}
		b.WriteString(fr.name)
		b.WriteString(f.Separator)
	}
	b.WriteString(name)
	return b.String()
}

func (f *Flattening) OpenField(key string) {
	if !f.flattening() {
		f.Inner.OpenField(key)
		return
	}
	f.Inner.OpenField(f.flatKey(f.elementName(key)))
}

func (f *Flattening) OpenObject(key string) {
	if !f.flattening() {
		f.Inner.OpenObject(key)
		f.frames = append(f.frames, flatFrame{name: key, passthrough: true})
		return
	}
	f.frames = append(f.frames, flatFrame{name: f.elementName(key)})
}

func (f *Flattening) OpenObjectInArray(key string) {
	if !f.flattening() {
		f.Inner.OpenObjectInArray(key)
		f.frames = append(f.frames, flatFrame{name: key, passthrough: true})
		return
	}
	f.frames = append(f.frames, flatFrame{name: f.elementName(key)})
}

func (f *Flattening) OpenArray(key string) {
	if !f.flattening() {
		f.Inner.OpenArray(key)
		f.frames = append(f.frames, flatFrame{name: key, array: true, passthrough: true})
		return
	}
	f.frames = append(f.frames, flatFrame{name: f.elementName(key), array: true})
}

func (f *Flattening) CloseObject() {
	if f.pop().passthrough {
		f.Inner.CloseObject()
	}
}

func (f *Flattening) CloseArray() {
	if f.pop().passthrough {
		f.Inner.CloseArray()
	}
}

func (f *Flattening) pop() flatFrame {
	n := len(f.frames)
	if n == 0 {
		panic("nesting: unbalanced close")
	}
	fr := f.frames[n-1]
	f.frames = f.frames[:n-1]
	return fr
}
