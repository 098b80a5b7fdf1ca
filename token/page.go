package token

// PageReadStream passes through the features of a window of the underlying
// stream, [Offset, Offset+Limit), and counts all the features of the
// underlying stream.  A negative Limit means no limit.
//
// Features outside the window are read and discarded, so that Matched is the
// total number of features once Next has returned io.EOF.
type PageReadStream struct {
	in      ReadStream
	offset  int
	limit   int
	matched int
	inPage  bool
}

var _ ReadStream = &PageReadStream{}

func NewPageReadStream(in ReadStream, offset, limit int) *PageReadStream {
	return &PageReadStream{in: in, offset: offset, limit: limit}
}

func (p *PageReadStream) Next() (Event, error) {
	for {
		ev, err := p.in.Next()
		if err != nil {
			return ev, err
		}
		switch ev.Kind {
		case FeatureStart:
			index := p.matched
			p.matched++
			p.inPage = index >= p.offset && (p.limit < 0 || index < p.offset+p.limit)
		}
		if p.inPage {
			return ev, nil
		}
	}
}

// Matched returns the number of features seen so far in the underlying
// stream.
func (p *PageReadStream) Matched() int {
	return p.matched
}

// Returned returns the number of features of the window seen so far.
func (p *PageReadStream) Returned() int {
	n := p.matched - p.offset
	if n < 0 {
		return 0
	}
	if p.limit >= 0 && n > p.limit {
		return p.limit
	}
	return n
}
