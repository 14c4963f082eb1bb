package kernel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/identity"
	"github.com/relaykernel/substrate/substrate/kernel"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/router"
)

type recordingRouter struct {
	lastMsg     *message.Message
	lastOptions map[string]any
}

func (r *recordingRouter) Dispatch(ctx context.Context, m *message.Message, options map[string]any) (*router.RouteResult, error) {
	r.lastMsg = m
	r.lastOptions = options
	return &router.RouteResult{Value: "dispatched"}, nil
}

func newKernel(t *testing.T) (*kernel.Kernel, *recordingRouter) {
	t.Helper()
	principals := identity.NewRegistry()
	profiles := identity.NewProfileRegistry()
	k, err := kernel.New(principals, profiles, kernel.Options{})
	require.NoError(t, err)
	mr := &recordingRouter{}
	k.SetMessageRouter(mr)
	return k, mr
}

// TestSendProtectedStampsCallerIdentity grounds spec §8 invariant 3.
func TestSendProtectedStampsCallerIdentity(t *testing.T) {
	k, mr := newKernel(t)
	caller := k.Principals.NewPrincipal("user").PKR

	m := message.New("api://ping", nil, message.Query)
	_, err := k.SendProtected(context.Background(), caller, m, nil)
	require.NoError(t, err)

	assert.Equal(t, string(caller), m.Meta.CallerID)
	assert.Equal(t, string(k.Identity), m.Meta.CallerIDSetBy)
	assert.Equal(t, string(caller), mr.lastMsg.Meta.CallerID)
}

// TestSendProtectedDiscardsCallerSuppliedIdentity documents
// that the kernel passes callerIdSetBy into options for internal bookkeeping,
// but router.Route strips it before a handler ever observes it — the
// invariant under test here (spec §8 invariant 4) is exercised fully in
// substrate/router's tests; this test only checks the kernel's contribution:
// any caller-supplied callerIdSetBy is discarded, never forwarded verbatim.
func TestSendProtectedDiscardsCallerSuppliedIdentity(t *testing.T) {
	k, mr := newKernel(t)
	caller := k.Principals.NewPrincipal("user").PKR

	m := message.New("api://ping", nil, message.Query)
	_, err := k.SendProtected(context.Background(), caller, m, map[string]any{
		"callerId":      "attacker",
		"callerIdSetBy": "attacker",
	})
	require.NoError(t, err)
	assert.Equal(t, string(k.Identity), mr.lastOptions["callerIdSetBy"])
	assert.Equal(t, string(caller), mr.lastOptions["callerId"])
}

func TestSendProtectedRequiresKernelReady(t *testing.T) {
	k := &kernel.Kernel{}
	_, err := k.SendProtected(context.Background(), identity.NewPKR(), message.New("api://x", nil, message.Query), nil)
	assert.ErrorIs(t, err, kernel.ErrKernelNotReady)
}

func TestSendProtectedRequiresCaller(t *testing.T) {
	k, _ := newKernel(t)
	_, err := k.SendProtected(context.Background(), "", message.New("api://x", nil, message.Query), nil)
	assert.ErrorIs(t, err, kernel.ErrCallerRequired)
}

// TestChannelACLEnforced grounds spec §8 scenario S6 at the kernel layer.
func TestChannelACLEnforced(t *testing.T) {
	k, _ := newKernel(t)
	alice := k.Principals.NewPrincipal("user").PKR
	mallory := k.Principals.NewPrincipal("user").PKR
	k.Channels.Create("chat://room/1", alice)

	_, err := k.SendProtected(context.Background(), alice, message.New("chat://room/1/msg", nil, message.Command), nil)
	require.NoError(t, err)

	_, err = k.SendProtected(context.Background(), mallory, message.New("chat://room/1/msg", nil, message.Command), nil)
	require.Error(t, err)
}

func TestReplyPathBypassesChannelACL(t *testing.T) {
	k, _ := newKernel(t)
	stranger := k.Principals.NewPrincipal("user").PKR

	m := message.New("kernel://response/corr-1", map[string]int{"v": 1}, message.Response)
	m.Meta.IsResponse = true
	m.Meta.CorrelationID = "corr-1"

	_, err := k.SendProtected(context.Background(), stranger, m, nil)
	require.NoError(t, err)
}

func TestSendProtectedResolvesCorrelatedResponse(t *testing.T) {
	k, _ := newKernel(t)
	caller := k.Principals.NewPrincipal("user").PKR

	ch, err := k.Correlation.Register("corr-2", time.Second)
	require.NoError(t, err)

	m := message.New("kernel://response/corr-2", 42, message.Response)
	m.Meta.IsResponse = true
	m.Meta.CorrelationID = "corr-2"
	_, err = k.SendProtected(context.Background(), caller, m, nil)
	require.NoError(t, err)

	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, 42, res.Value)
}
