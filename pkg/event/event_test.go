package event

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

func TestNewPortOperStateEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewPortOperStateEvent(1, 100, types.PortStateUp, at)
	other := NewPortOperStateEvent(1, 100, types.PortStateUp, at)

	assert.Equal(t, uint64(1), e.NodeID)
	assert.Equal(t, uint32(100), e.PortID)
	assert.Equal(t, types.PortStateUp, e.OperState)
	assert.Equal(t, at, e.Time)
	assert.NotEqual(t, e.ID, other.ID)
	assert.Contains(t, e.String(), "node 1 port 100 -> UP")
}

func TestChannelWriterDelivers(t *testing.T) {
	ch := make(chan *Event, 1)
	w := NewChannelWriter(context.Background(), ch)
	e := NewPortOperStateEvent(1, 1, types.PortStateDown, time.Now())
	require.NoError(t, w.Write(e))
	assert.Same(t, e, <-ch)
}

func TestChannelWriterClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan *Event)
	w := NewChannelWriter(ctx, ch)

	done := make(chan error, 1)
	go func() { done <- w.Write(NewPortOperStateEvent(1, 1, types.PortStateUp, time.Now())) }()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("write did not return after cancel")
	}
	assert.True(t, errors.Is(w.Write(&Event{}), ErrClosed))
}

func TestLogWriter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := NewLogWriter(logrus.NewEntry(logger))
	require.NoError(t, w.Write(NewPortOperStateEvent(2, 7, types.PortStateUp, time.Now())))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "port oper-state changed", entry.Message)
	assert.Equal(t, uint32(7), entry.Data["port"])
	assert.Equal(t, "UP", entry.Data["state"])
}

func TestWriterFunc(t *testing.T) {
	var got *Event
	var w Writer = WriterFunc(func(e *Event) error { got = e; return nil })
	e := &Event{NodeID: 3}
	require.NoError(t, w.Write(e))
	assert.Same(t, e, got)
}
