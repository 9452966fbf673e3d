package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

// Event is a port operational state change forwarded to the registered sink.
type Event struct {
	ID        uuid.UUID
	Time      time.Time
	NodeID    uint64
	PortID    uint32
	OperState types.PortState
}

func (e *Event) String() string {
	return fmt.Sprintf("port oper-state event %s: node %d port %d -> %s", e.ID, e.NodeID, e.PortID, e.OperState)
}

// NewPortOperStateEvent builds the event for a port that moved to state.
func NewPortOperStateEvent(nodeID uint64, portID uint32, state types.PortState, at time.Time) *Event {
	return &Event{
		ID:        uuid.New(),
		Time:      at,
		NodeID:    nodeID,
		PortID:    portID,
		OperState: state,
	}
}

// Writer is an event sink.
type Writer interface {
	Write(*Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(*Event) error

func (f WriterFunc) Write(e *Event) error { return f(e) }

// ErrClosed is returned by a ChannelWriter once its context is done.
const ErrClosed = errors.ConstError("event writer closed")

// ChannelWriter delivers events on a channel, blocking while the channel is
// full until ctx is done.
type ChannelWriter struct {
	ctx context.Context
	ch  chan<- *Event
}

func NewChannelWriter(ctx context.Context, ch chan<- *Event) *ChannelWriter {
	return &ChannelWriter{ctx: ctx, ch: ch}
}

func (w *ChannelWriter) Write(e *Event) error {
	select {
	case <-w.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case w.ch <- e:
		return nil
	case <-w.ctx.Done():
		return ErrClosed
	}
}

// LogWriter logs every event it receives.
type LogWriter struct {
	log *logrus.Entry
}

func NewLogWriter(log *logrus.Entry) *LogWriter {
	return &LogWriter{log: log}
}

func (w *LogWriter) Write(e *Event) error {
	w.log.WithFields(logrus.Fields{
		"event": e.ID.String(),
		"node":  e.NodeID,
		"port":  e.PortID,
		"state": e.OperState.String(),
	}).Info("port oper-state changed")
	return nil
}
