package token

import "context"

// A StreamSource produces the flat event stream of a sequence of features.
// Produce must return promptly with ctx.Err() once ctx is cancelled; Send
// takes care of that for each event.
type StreamSource interface {
	Produce(ctx context.Context, out chan<- Event) error
}

// StartStream uses the source to start producing events and returns a stream
// where these events can be read.  This is always fast because the source is
// computed in a goroutine.  The stream must be closed if it is not read to the
// end, so that the goroutine can exit.
//
// An error returned by the source is returned by the stream's Next method once
// all the events produced before the error have been read.
func StartStream(ctx context.Context, source StreamSource) *ChannelReadStream {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event)
	r := &ChannelReadStream{events: events, cancel: cancel}
	go func() {
		defer close(events)
		r.srcErr = source.Produce(ctx, events)
	}()
	return r
}

// Send writes ev to out unless ctx is cancelled first.
func Send(ctx context.Context, out chan<- Event, ev Event) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendFeature sends a FeatureStart event, the given property events and a
// FeatureEnd event.
func SendFeature(ctx context.Context, out chan<- Event, props ...Event) error {
	if err := Send(ctx, out, Event{Kind: FeatureStart}); err != nil {
		return err
	}
	for _, ev := range props {
		if err := Send(ctx, out, ev); err != nil {
			return err
		}
	}
	return Send(ctx, out, Event{Kind: FeatureEnd})
}
