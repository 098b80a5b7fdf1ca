package token

import (
	"io"
)

// A ReadStream yields the events of a feature stream.  Next returns io.EOF at
// the end of the stream and any other error if the source failed.
type ReadStream interface {
	Next() (Event, error)
}

// A WriteStream consumes output tokens.  Implementations writing to an
// io.Writer panic with a *format.PrinterError when writing fails.
type WriteStream interface {
	Put(Token)
}

// ChannelReadStream reads events produced by a source running in another
// goroutine (see StartStream).
type ChannelReadStream struct {
	events <-chan Event
	cancel func()
	srcErr error // set by the producing goroutine before events is closed
	err    error
}

var _ ReadStream = &ChannelReadStream{}

func (r *ChannelReadStream) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}
	ev, ok := <-r.events
	if !ok {
		r.err = r.srcErr
		if r.err == nil {
			r.err = io.EOF
		}
		return Event{}, r.err
	}
	return ev, nil
}

// Close stops the producing source and waits for it to finish.  It is safe to
// call Close after the stream has been read to the end.
func (r *ChannelReadStream) Close() {
	r.cancel()
	for range r.events {
	}
}

type SliceReadStream struct {
	events []Event
}

var _ ReadStream = &SliceReadStream{}

func NewSliceReadStream(events []Event) *SliceReadStream {
	return &SliceReadStream{events: events}
}

func (r *SliceReadStream) Next() (Event, error) {
	if len(r.events) == 0 {
		return Event{}, io.EOF
	}
	ev := r.events[0]
	r.events = r.events[1:]
	return ev, nil
}

// ReadAll drains the stream.  It returns the events read so far and the
// error that ended the stream, if it was not io.EOF.
func ReadAll(r ReadStream) ([]Event, error) {
	var events []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// AccumulatorStream records the tokens put into it.
type AccumulatorStream struct {
	toks []Token
}

var _ WriteStream = &AccumulatorStream{}

func NewAccumulatorStream() *AccumulatorStream {
	return &AccumulatorStream{}
}

func (w *AccumulatorStream) Put(tok Token) {
	w.toks = append(w.toks, tok)
}

func (w *AccumulatorStream) GetTokens() []Token {
	return w.toks
}
