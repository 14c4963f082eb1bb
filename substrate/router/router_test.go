package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/router"
)

func echoHandler(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
	return map[string]any{"ok": true, "id": params["id"]}, nil
}

// TestBasicRoute grounds spec §8 scenario S1.
func TestBasicRoute(t *testing.T) {
	r := router.New(router.Options{})
	require.NoError(t, r.Register("api://users/{id}", echoHandler, router.RegisterOptions{}))

	msg := message.New("api://users/42", nil, message.Query)
	res, err := r.Route(context.Background(), msg, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true, "id": "42"}, res.Value)
}

func TestNoRoute(t *testing.T) {
	r := router.New(router.Options{})
	msg := message.New("api://nothing", nil, message.Query)
	_, err := r.Route(context.Background(), msg, nil)
	var nr *router.NoRouteError
	require.True(t, errors.As(err, &nr))
}

type fakeEnforcer struct {
	allow bool
	err   error
}

func (f *fakeEnforcer) CheckScope(callerID, scope, required string) error {
	if f.allow {
		return nil
	}
	return f.err
}

// TestScopeDeny grounds spec §8 scenario S2.
func TestScopeDeny(t *testing.T) {
	denyErr := &router.ScopeDeniedError{Scope: "users:delete", Required: "write", Got: "r"}
	r := router.New(router.Options{Enforcer: &fakeEnforcer{allow: false, err: denyErr}})

	called := false
	h := func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		called = true
		return nil, nil
	}
	require.NoError(t, r.Register("api://users/{id}/delete", h, router.RegisterOptions{
		RequiredPermission: "write",
		Scope:              "users:delete",
	}))

	msg := message.New("api://users/42/delete", nil, message.Command)
	_, err := r.Route(context.Background(), msg, map[string]any{"callerId": "reader-1"})
	require.Error(t, err)
	assert.False(t, called)

	var sd *router.ScopeDeniedError
	require.True(t, errors.As(err, &sd))
	assert.Equal(t, "users:delete", sd.Scope)
}

func TestStripsCallerIDSetBy(t *testing.T) {
	var seen map[string]any
	h := func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		seen = options
		return nil, nil
	}
	r := router.New(router.Options{})
	require.NoError(t, r.Register("api://ping", h, router.RegisterOptions{}))

	msg := message.New("api://ping", nil, message.Query)
	_, err := r.Route(context.Background(), msg, map[string]any{"callerId": "x", "callerIdSetBy": "kernel"})
	require.NoError(t, err)
	_, ok := seen["callerIdSetBy"]
	assert.False(t, ok)
	assert.Equal(t, "x", seen["callerId"])
}

func TestOverwriteDecoratesExistingRoute(t *testing.T) {
	r := router.New(router.Options{})
	require.NoError(t, r.Register("api://ping", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		return "base", nil
	}, router.RegisterOptions{}))

	require.NoError(t, r.Overwrite("api://ping", func(prev router.Handler) router.Handler {
		return func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
			v, err := prev(ctx, msg, params, options)
			if err != nil {
				return nil, err
			}
			return v.(string) + "+wrapped", nil
		}
	}))

	msg := message.New("api://ping", nil, message.Query)
	res, err := r.Route(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Equal(t, "base+wrapped", res.Value)
}

func TestHandlerErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	h := func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		return nil, boom
	}
	r := router.New(router.Options{})
	require.NoError(t, r.Register("api://fail", h, router.RegisterOptions{}))

	msg := message.New("api://fail", nil, message.Command)
	_, err := r.Route(context.Background(), msg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestWildcardMatchCached(t *testing.T) {
	r := router.New(router.Options{})
	require.NoError(t, r.Register("fs://files/*", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		return params["*"], nil
	}, router.RegisterOptions{}))

	msg := message.New("fs://files/a/b/c", nil, message.Query)
	res, err := r.Route(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", res.Value)

	// Second call should hit the LRU cache path; result must be identical.
	res2, err := r.Route(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Value, res2.Value)
}
