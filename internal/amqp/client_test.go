package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{15, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed amqp", fmt.Errorf("consume: %w", amqp091.ErrClosed), true},
		{"channel closed", errors.New("message channel closed"), true},
		{"other", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isConnectionError(tt.err))
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	assert.False(t, client.isCircuitOpen(), "closed initially")

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	assert.True(t, client.isCircuitOpen())
	assert.Equal(t, StateOpen, atomic.LoadInt32(&client.state))

	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	assert.False(t, client.isCircuitOpen(), "half-open after timeout")
	assert.Equal(t, StateHalfOpen, atomic.LoadInt32(&client.state))

	// A failure while half-open reopens immediately.
	client.recordFailure()
	assert.Equal(t, StateOpen, atomic.LoadInt32(&client.state))

	client.recordSuccess()
	assert.False(t, client.isCircuitOpen())
	assert.Equal(t, int64(0), atomic.LoadInt64(&client.failureCount))
}

func TestClient_PublishGuards(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	err := client.PublishTransactionSync(context.Background(), 123, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "circuit breaker is open")

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, client.PublishTransactionDelete(ctx, 123))

	// No URL: the publish fails fast and counts as a failure.
	err = client.PublishTransactionSync(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&client.failureCount))
}

func TestMessages_JSON(t *testing.T) {
	msg := NewTransactionSyncMessage(12345, 2)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)

	body, err := msg.ToJSON()
	require.NoError(t, err)
	parsed, err := TransactionSyncMessageFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), parsed.ID)
	assert.Equal(t, int64(2), parsed.Version)

	_, err = TransactionSyncMessageFromJSON([]byte(`{"id": "not_a_number"}`))
	assert.Error(t, err)

	del, err := NewTransactionDeleteMessage(9).ToJSON()
	require.NoError(t, err)
	parsedDel, err := TransactionDeleteMessageFromJSON(del)
	require.NoError(t, err)
	assert.Equal(t, int64(9), parsedDel.ID)
}

type fakeAck struct {
	acked, nacked, requeued int
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked++; return nil }

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	if requeue {
		f.requeued++
	}
	return nil
}

func (f *fakeAck) Reject(uint64, bool) error { return nil }

func delivery(ack *fakeAck, typ string, body string) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, Type: typ, Body: []byte(body)}
}

func TestHandleDelivery(t *testing.T) {
	ctx := context.Background()
	var synced, deleted int64
	h := Handlers{
		OnSync: func(_ context.Context, m *TransactionSyncMessage) error {
			synced = m.ID
			if m.Version < 0 {
				return errors.New("sheet unavailable")
			}
			return nil
		},
		OnDelete: func(_ context.Context, m *TransactionDeleteMessage) error {
			deleted = m.ID
			return nil
		},
	}

	ack := &fakeAck{}
	handleDelivery(ctx, delivery(ack, TypeTransactionSync, `{"id":4,"version":1}`), h)
	assert.Equal(t, int64(4), synced)
	assert.Equal(t, 1, ack.acked)

	ack = &fakeAck{}
	handleDelivery(ctx, delivery(ack, TypeTransactionDelete, `{"id":8}`), h)
	assert.Equal(t, int64(8), deleted)
	assert.Equal(t, 1, ack.acked)

	ack = &fakeAck{}
	handleDelivery(ctx, delivery(ack, TypeTransactionSync, `{"id":4,"version":-1}`), h)
	assert.Equal(t, 1, ack.requeued, "handler failure is requeued")

	ack = &fakeAck{}
	handleDelivery(ctx, delivery(ack, TypeTransactionSync, `not json`), h)
	assert.Equal(t, 1, ack.nacked)
	assert.Equal(t, 0, ack.requeued, "malformed body is dropped")

	ack = &fakeAck{}
	handleDelivery(ctx, delivery(ack, "something.else", `{}`), h)
	assert.Equal(t, 1, ack.nacked)
	assert.Equal(t, 0, ack.requeued)
}

func TestClient_Ping(t *testing.T) {
	c := &Client{}
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	for i := 0; i < maxFailures; i++ {
		c.recordFailure()
	}
	assert.ErrorIs(t, c.Ping(context.Background()), ErrCircuitOpen)
}
