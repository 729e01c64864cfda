// Package refreshtrigger implements the Refresh Trigger Interceptor (§4.7):
// a pair of gRPC client interceptors, chained via
// go-grpc-middleware/v2, that invoke a resolver's refresh operation when an
// RPC fails with a status code the resilience policy considers
// refresh-worthy. The interceptors never alter the failure they observe;
// they re-raise it unchanged and trigger a refresh purely as a side
// effect.
package refreshtrigger

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/webitel/cluster-grpclb/internal/clustertypes"
)

// Policy is the refresh predicate of §4.7 ("The default predicate accepts
// the transport-level status codes configured in resilience options").
type Policy func(code codes.Code) bool

// PolicyFromCodes builds a Policy that accepts exactly the given codes,
// matching clustertypes.ResilienceConfig.RefreshOnStatusCodes.
func PolicyFromCodes(codeSet []uint32) Policy {
	return func(code codes.Code) bool {
		return clustertypes.ContainsCode(codeSet, code)
	}
}

// DefaultPolicy accepts clustertypes.DefaultRefreshStatusCodes().
func DefaultPolicy() Policy {
	return PolicyFromCodes(clustertypes.DefaultRefreshStatusCodes())
}

// shouldRefresh evaluates the policy against an arbitrary error value the
// way the interceptors observe it off the wire: non-status errors (e.g.
// context.Canceled surfaced raw) never trigger a refresh.
func shouldRefresh(policy Policy, err error) (codes.Code, bool) {
	if err == nil || policy == nil {
		return codes.OK, false
	}
	st, ok := status.FromError(err)
	if !ok {
		return codes.Unknown, false
	}
	return st.Code(), policy(st.Code())
}
