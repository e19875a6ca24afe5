package atexit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIsLIFOAndOnce(t *testing.T) {
	m := &Manager{timeout: time.Second}
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		m.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	require.Equal(t, 3, m.Len())

	require.NoError(t, m.Run())
	assert.Equal(t, []string{"third", "second", "first"}, order)

	require.NoError(t, m.Run())
	assert.Len(t, order, 3, "second Run must not re-run functions")
}

func TestRunCollectsErrors(t *testing.T) {
	m := &Manager{timeout: time.Second}
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	m.Register("a", func(context.Context) error { return errA })
	m.Register("ok", func(context.Context) error { return nil })
	m.Register("b", func(context.Context) error { return errB })

	err := m.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestRunPassesBoundedContext(t *testing.T) {
	m := &Manager{timeout: 10 * time.Millisecond}
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, m.Run(), context.DeadlineExceeded)
}

func TestNewKeepsEarlierManager(t *testing.T) {
	first := New(time.Second)
	defer first.Release()
	require.Same(t, first, Current())

	second := New(time.Second)
	assert.Same(t, first, Current(), "an existing process manager must not be replaced")
	second.Release()
	assert.Same(t, first, Current())

	first.Release()
	assert.Nil(t, Current())
}

type closer struct{ err error }

func (c closer) Close() error { return c.err }

func TestCloseResource(t *testing.T) {
	assert.NoError(t, CloseResource(closer{}, "ok")(context.Background()))
	err := CloseResource(closer{errors.New("disk")}, "printer")(context.Background())
	assert.EqualError(t, err, "failed to close printer: disk")
}
