package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RecordAndEvents(t *testing.T) {
	l := NewLog(10, time.Minute)

	l.Record("auth.verify", "wallet1", "", "ok")
	l.Record("payroll.create", "wallet1", "payroll1", "ok")

	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "auth.verify", events[0].Action)
	assert.Equal(t, "payroll1", events[1].Subject)
}

func TestLog_EvictsExpired(t *testing.T) {
	now := time.Now()
	l := NewLog(10, time.Minute)
	l.now = func() time.Time { return now }

	l.Record("auth.challenge", "wallet1", "", "ok")

	now = now.Add(2 * time.Minute)
	l.Record("auth.challenge", "wallet2", "", "ok")

	events := l.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "wallet2", events[0].Actor)
}

func TestLog_BoundedSize(t *testing.T) {
	l := NewLog(3, time.Hour)

	l.Record("a", "", "", "ok")
	l.Record("b", "", "", "ok")
	l.Record("c", "", "", "ok")
	l.Record("d", "", "", "ok")

	events := l.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "b", events[0].Action)
	assert.Equal(t, "d", events[2].Action)
}

type fakeArchiver struct {
	batches [][]Event
	err     error
}

func (f *fakeArchiver) Archive(_ context.Context, events []Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestLog_Flush(t *testing.T) {
	l := NewLog(10, time.Hour)
	l.Record("a", "", "", "ok")
	l.Record("b", "", "", "ok")

	a := &fakeArchiver{}
	err := l.Flush(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, a.batches, 1)
	assert.Len(t, a.batches[0], 2)
	assert.Empty(t, l.Events())
}

func TestLog_FlushFailureRequeues(t *testing.T) {
	l := NewLog(10, time.Hour)
	l.Record("a", "", "", "ok")

	a := &fakeArchiver{err: errors.New("unreachable")}
	err := l.Flush(context.Background(), a)
	require.Error(t, err)
	assert.Len(t, l.Events(), 1)

	a.err = nil
	require.NoError(t, l.Flush(context.Background(), a))
	assert.Empty(t, l.Events())
}

func TestLog_FlushEmpty(t *testing.T) {
	l := NewLog(10, time.Hour)
	a := &fakeArchiver{}
	require.NoError(t, l.Flush(context.Background(), a))
	assert.Empty(t, a.batches)
}
