package kernel

import (
	"errors"

	"github.com/relaykernel/substrate/substrate/router"
)

// ErrKernelNotReady is returned by SendProtected before the kernel identity
// has been established (spec §4.7 Failure modes).
var ErrKernelNotReady = errors.New("kernel: not ready")

// ErrCallerRequired is returned when SendProtected is invoked with an empty
// caller PKR.
var ErrCallerRequired = errors.New("kernel: caller required")

// RouteNotFoundError and HandlerError reuse the router package's taxonomy —
// the kernel's protected send ultimately dispatches through the same
// router.Route call a plain send does (spec §7 taxonomy: Routing errors
// are shared between the unprotected and protected paths).
type RouteNotFoundError = router.NoRouteError
type HandlerError = router.HandlerError
type ScopeDeniedError = router.ScopeDeniedError
