package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(
	_ context.Context,
	exchange string,
	key string,
	_ bool,
	_ bool,
	msg amqp091.Publishing,
) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "test_exchange")
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Publish(context.Background(), "graph.updated", map[string]any{"projectId": 3})
	require.NoError(t, err)

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "test_exchange", got.exchange)
	assert.Equal(t, "graph.updated", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, fixed, got.msg.Timestamp)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, float64(3), body["projectId"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublish_Errors(t *testing.T) {
	p := newPublisher(&fakeChannel{err: errors.New("channel closed")}, "x")
	err := p.Publish(context.Background(), "graph.updated", struct{}{})
	require.ErrorContains(t, err, "channel closed")

	p = newPublisher(&fakeChannel{}, "x")
	err = p.Publish(context.Background(), "graph.updated", make(chan int))
	require.ErrorContains(t, err, "marshal")
}
