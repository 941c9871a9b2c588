package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/glassflow/table-writer/internal/writer"
)

type jetstreamBatch = jetstream.MessageBatch

type fakeMsg struct {
	jetstream.Msg

	data   []byte
	seq    uint64
	acked  bool
	termed bool
}

func newMsg(seq uint64, data string) *fakeMsg {
	return &fakeMsg{data: []byte(data), seq: seq}
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "events.created" }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{ //nolint:exhaustruct // test data
		Stream:   "events",
		Sequence: jetstream.SequencePair{Stream: m.seq, Consumer: m.seq},
	}, nil
}

func (m *fakeMsg) Ack() error {
	m.acked = true
	return nil
}

func (m *fakeMsg) Term() error {
	m.termed = true
	return nil
}

type fakeBatch struct {
	msgs chan jetstream.Msg
}

func newBatch(msgs ...*fakeMsg) *fakeBatch {
	ch := make(chan jetstream.Msg, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeBatch{msgs: ch}
}

func (b *fakeBatch) Messages() <-chan jetstream.Msg { return b.msgs }
func (b *fakeBatch) Error() error                   { return nil }

type fakeFetcher struct {
	mu      sync.Mutex
	batches []*fakeBatch
	noWait  []*fakeBatch
}

func (f *fakeFetcher) Fetch(int, ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.batches) == 0 {
		return newBatch(), nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeFetcher) FetchNoWait(int) (jetstream.MessageBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.noWait) == 0 {
		return newBatch(), nil
	}
	b := f.noWait[0]
	f.noWait = f.noWait[1:]
	return b, nil
}

type fakeWriter struct {
	mu       sync.Mutex
	requests []writer.Request
	err      error
	onWrite  func()
}

func (w *fakeWriter) Write(_ context.Context, req writer.Request) error {
	w.mu.Lock()
	w.requests = append(w.requests, req)
	onWrite := w.onWrite
	w.mu.Unlock()

	if onWrite != nil {
		onWrite()
	}
	return w.err
}

func (w *fakeWriter) Requests() []writer.Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests
}

var errFetch = errors.New("fetch failed")
