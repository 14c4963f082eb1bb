package global_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/global"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/queue"
	"github.com/relaykernel/substrate/substrate/router"
)

type fakeSubsystem struct {
	accepted []*message.Message
	acceptErr error
	immediate *router.RouteResult
}

func (f *fakeSubsystem) Accept(m *message.Message, options map[string]any) error {
	if f.acceptErr != nil {
		return f.acceptErr
	}
	f.accepted = append(f.accepted, m)
	return nil
}

func (f *fakeSubsystem) ProcessImmediately(ctx context.Context, m *message.Message, options map[string]any) (*router.RouteResult, error) {
	return f.immediate, nil
}

func TestDispatchAsyncEnqueues(t *testing.T) {
	sub := &fakeSubsystem{}
	r := global.NewRouter(func(scheme string) (global.Dispatchable, bool) {
		if scheme == "api" {
			return sub, true
		}
		return nil, false
	})

	_, err := r.Dispatch(context.Background(), message.New("api://users/1", nil, message.Query), nil)
	require.NoError(t, err)
	assert.Len(t, sub.accepted, 1)
}

func TestDispatchImmediateBypassesQueue(t *testing.T) {
	sub := &fakeSubsystem{immediate: &router.RouteResult{Value: "sync"}}
	r := global.NewRouter(func(scheme string) (global.Dispatchable, bool) {
		return sub, true
	})

	res, err := r.Dispatch(context.Background(), message.New("api://x", nil, message.Query), map[string]any{"immediate": true})
	require.NoError(t, err)
	assert.Equal(t, "sync", res.Value)
	assert.Empty(t, sub.accepted)
}

func TestDispatchUnknownSubsystem(t *testing.T) {
	r := global.NewRouter(func(scheme string) (global.Dispatchable, bool) { return nil, false })
	_, err := r.Dispatch(context.Background(), message.New("nope://x", nil, message.Query), nil)
	var unknown *global.UnknownSubsystemError
	require.True(t, errors.As(err, &unknown))
}

func TestDispatchQueueFull(t *testing.T) {
	sub := &fakeSubsystem{acceptErr: queue.ErrFull}
	r := global.NewRouter(func(scheme string) (global.Dispatchable, bool) { return sub, true })

	_, err := r.Dispatch(context.Background(), message.New("api://x", nil, message.Query), nil)
	var full *global.QueueFullError
	require.True(t, errors.As(err, &full))
}
