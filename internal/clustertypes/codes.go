package clustertypes

import "google.golang.org/grpc/codes"

// DefaultRefreshStatusCodes is the default set referenced by §6/§9: the
// "typical transport-unavailable codes". Kept as a function (not a package
// var) so callers always get their own mutable slice.
func DefaultRefreshStatusCodes() []uint32 {
	return []uint32{
		uint32(codes.Unavailable),
		uint32(codes.DeadlineExceeded),
		uint32(codes.Aborted),
	}
}

// ContainsCode reports whether code appears in the configured set.
func ContainsCode(set []uint32, code codes.Code) bool {
	for _, c := range set {
		if codes.Code(c) == code {
			return true
		}
	}
	return false
}
