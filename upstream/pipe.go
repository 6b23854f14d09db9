package upstream

import (
	"context"
	"io"
	"sync"
)

// Pipe is an in-process Upstream whose events are pushed by the caller.
// Every Query call is published on Queries so a driver can feed it.
type Pipe struct {
	Queries chan *PipeQuery
}

func NewPipe() *Pipe {
	return &Pipe{Queries: make(chan *PipeQuery, 16)}
}

func (p *Pipe) Query(ctx context.Context, req QueryRequest) (Query, error) {
	q := &PipeQuery{
		Request: req,
		events:  make(chan pipeItem, 64),
		closed:  make(chan struct{}),
	}
	select {
	case p.Queries <- q:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return q, nil
}

type pipeItem struct {
	ev  Event
	err error
}

// PipeQuery is one query started on a Pipe.
type PipeQuery struct {
	Request QueryRequest

	events    chan pipeItem
	closeOnce sync.Once
	closed    chan struct{}
	endOnce   sync.Once
}

// Send queues an event for Next.
func (q *PipeQuery) Send(ev Event) {
	select {
	case q.events <- pipeItem{ev: ev}:
	case <-q.closed:
	}
}

// Fail makes Next return err once the queued events are consumed.
func (q *PipeQuery) Fail(err error) {
	select {
	case q.events <- pipeItem{err: err}:
	case <-q.closed:
	}
}

// End makes Next return io.EOF once the queued events are consumed.
func (q *PipeQuery) End() {
	q.endOnce.Do(func() { close(q.events) })
}

// Closed is closed once the consumer calls Close.
func (q *PipeQuery) Closed() <-chan struct{} {
	return q.closed
}

func (q *PipeQuery) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, io.EOF
	case it, ok := <-q.events:
		if !ok {
			return nil, io.EOF
		}
		return it.ev, it.err
	}
}

func (q *PipeQuery) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
