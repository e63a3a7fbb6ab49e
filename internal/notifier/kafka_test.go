package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifierKeysByOrderID(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifierWithWriter(w)

	payload := Notification{OrderID: 42, RecipientContact: "ravi@example.com", StatusMessage: "Your order is ready for pickup"}
	require.NoError(t, n.Notify(context.Background(), payload))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "42", string(w.messages[0].Key))

	var got Notification
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
	assert.Equal(t, payload, got)
}

func TestKafkaNotifierWriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unreachable")}
	n := NewKafkaNotifierWithWriter(w)

	err := n.Notify(context.Background(), Notification{OrderID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka write")
}

func TestKafkaNotifierClose(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifierWithWriter(w)
	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}
