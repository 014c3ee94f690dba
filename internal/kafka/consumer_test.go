package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErr  error
	committed map[int][]int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, committed: map[int][]int64{}}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	err := f.fetchErr
	f.mu.Unlock()
	if err != nil {
		return kafka.Message{}, err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed[m.Partition] = append(f.committed[m.Partition], m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) commits(partition int) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed[partition]...)
}

func msg(partition int, offset int64) kafka.Message {
	return kafka.Message{Partition: partition, Offset: offset}
}

func testConsumer(r reader, workers int) *Consumer {
	c := newConsumer(r, workers, zap.NewNop())
	c.backoff = time.Millisecond
	c.maxBackoff = 5 * time.Millisecond
	return c
}

func run(c *Consumer, h Handler) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return cancel, done
}

func TestConsumerRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	r := newFakeReader(msg(0, 0), msg(0, 1), msg(0, 2))
	var (
		mu      sync.Mutex
		handled []int64
		fails   = 2
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, m.Offset)
		if m.Offset == 1 && fails > 0 {
			fails--
			return errors.New("database unavailable")
		}
		return nil
	}

	cancel, done := run(testConsumer(r, 3), h)
	assert.Eventually(t, func() bool { return len(r.commits(0)) == 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{0, 1, 2}, r.commits(0))
	mu.Lock()
	assert.Equal(t, []int64{0, 1, 1, 1, 2}, handled)
	mu.Unlock()
	assert.True(t, r.closed)
}

func TestConsumerHoldsOnlyTheFailingPartition(t *testing.T) {
	r := newFakeReader(msg(0, 10), msg(1, 20), msg(0, 11), msg(1, 21), msg(1, 22))
	var (
		mu    sync.Mutex
		order = map[int][]int64{}
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		order[m.Partition] = append(order[m.Partition], m.Offset)
		if m.Partition == 0 {
			return errors.New("order not visible yet")
		}
		return nil
	}

	cancel, done := run(testConsumer(r, 2), h)
	assert.Eventually(t, func() bool { return len(r.commits(1)) == 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{20, 21, 22}, r.commits(1))
	assert.Empty(t, r.commits(0))
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, order[0])
	for _, off := range order[0] {
		assert.Equal(t, int64(10), off, "offset 11 must wait for 10")
	}
}

func TestConsumerKeepsPartitionOrderWithManyWorkers(t *testing.T) {
	var msgs []kafka.Message
	for off := int64(0); off < 20; off++ {
		for p := 0; p < 3; p++ {
			msgs = append(msgs, msg(p, off))
		}
	}
	r := newFakeReader(msgs...)
	var (
		mu    sync.Mutex
		order = map[int][]int64{}
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		order[m.Partition] = append(order[m.Partition], m.Offset)
		return nil
	}

	cancel, done := run(testConsumer(r, 8), h)
	assert.Eventually(t, func() bool {
		return len(r.commits(0)) == 20 && len(r.commits(1)) == 20 && len(r.commits(2)) == 20
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	for p := 0; p < 3; p++ {
		assert.IsIncreasing(t, order[p])
		assert.IsIncreasing(t, r.commits(p))
	}
}

func TestConsumerReturnsFetchError(t *testing.T) {
	r := newFakeReader()
	r.fetchErr = errors.New("broker gone")

	err := testConsumer(r, 1).Start(context.Background(), func(context.Context, kafka.Message) error { return nil })
	assert.EqualError(t, err, "broker gone")
	assert.True(t, r.closed)
}
