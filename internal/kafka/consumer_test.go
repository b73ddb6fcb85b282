package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
	"reporting-service/internal/reporting"
)

type call struct {
	kind    string
	payload reporting.Payload
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []call
	errs  []error
}

func (f *fakeSubmitter) Submit(_ context.Context, kind string, payload reporting.Payload, _ int64) (reporting.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: kind, payload: payload})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return reporting.Result{}, err
		}
	}
	return reporting.Result{Report: models.Report{ID: int64(len(f.calls)), Kind: models.ReportKind(kind)}}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func newTestConsumer(reader messageReader, sub Submitter) *Consumer {
	return &Consumer{
		reader:      reader,
		pipeline:    sub,
		logger:      logging.NewDiscard(),
		attempts:    3,
		retryDelay:  time.Millisecond,
		outageDelay: time.Millisecond,
	}
}

func TestDecodeDefaultsToFailure(t *testing.T) {
	kind, payload, err := decode(kafka.Message{Topic: "vehicle-failures", Partition: 1, Offset: 44, Value: []byte(`{"emitter_id": 5, "affected_unit": "ABC-1"}`)})
	require.NoError(t, err)
	assert.Equal(t, "failure", kind)
	assert.Equal(t, json.Number("5"), payload["emitter_id"])
	assert.Equal(t, "kafka-vehicle-failures-1-44", payload["external_id"])
}

func TestDecodeUsesKeyAndKind(t *testing.T) {
	kind, payload, err := decode(kafka.Message{Key: []byte("bus-17:1700000000"), Value: []byte(`{"kind": "delay", "conductor_id": 2}`)})
	require.NoError(t, err)
	assert.Equal(t, "delay", kind)
	assert.NotContains(t, payload, "kind")
	assert.Equal(t, "bus-17:1700000000", payload["external_id"])

	_, payload, err = decode(kafka.Message{Key: []byte("k"), Value: []byte(`{"id_reporte": "r-1"}`)})
	require.NoError(t, err)
	assert.NotContains(t, payload, "external_id")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := decode(kafka.Message{Value: []byte(`not json`)})
	require.Error(t, err)
	_, _, err = decode(kafka.Message{Value: []byte(`null`)})
	require.Error(t, err)
}

func TestHandleRetriesStorageErrors(t *testing.T) {
	sub := &fakeSubmitter{errs: []error{&reporting.StorageError{Op: "insert report", Err: errors.New("conn reset")}, nil}}
	c := newTestConsumer(&fakeReader{}, sub)

	err := c.handle(context.Background(), kafka.Message{Value: []byte(`{"emitter_id": 5}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.count())
	assert.Equal(t, sub.calls[0].payload["external_id"], sub.calls[1].payload["external_id"])
}

func TestHandleDoesNotRetryValidation(t *testing.T) {
	sub := &fakeSubmitter{errs: []error{&reporting.ValidationError{Field: "emitter_id", Reason: "is required"}}}
	c := newTestConsumer(&fakeReader{}, sub)

	err := c.handle(context.Background(), kafka.Message{Value: []byte(`{}`)})
	require.ErrorIs(t, err, reporting.ErrValidation)
	assert.Equal(t, 1, sub.count())
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func storageErrors(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &reporting.StorageError{Op: "insert report", Err: errors.New("connection refused")}
	}
	return errs
}

func TestStartCommitsHandledAndRejectedMessages(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"emitter_id": 5}`)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Value: []byte(`{"emitter_id": 6}`)},
	}}
	sub := &fakeSubmitter{}
	c := newTestConsumer(reader, sub)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, 2, sub.count())
	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
}

func TestStartKeepsOffsetDuringStorageOutage(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: []byte(`{"emitter_id": 5}`)}}}
	sub := &fakeSubmitter{errs: storageErrors(1000)}
	c := newTestConsumer(reader, sub)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	// Well past the three attempts of a single handle call.
	require.Eventually(t, func() bool { return sub.count() > 6 }, time.Second, time.Millisecond)
	cancel()
	wg.Wait()

	assert.Empty(t, reader.commits())
}

func TestStartCommitsOnceStorageRecovers(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: []byte(`{"emitter_id": 5}`)},
		{Offset: 8, Value: []byte(`{"emitter_id": 6}`)},
	}}
	sub := &fakeSubmitter{errs: storageErrors(5)}
	c := newTestConsumer(reader, sub)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, []int64{7, 8}, reader.commits())
	assert.Equal(t, 7, sub.count())
	// Every attempt on offset 7 carried the same derived external id.
	first := sub.calls[0].payload["external_id"]
	for _, call := range sub.calls[:6] {
		assert.Equal(t, first, call.payload["external_id"])
	}
}
