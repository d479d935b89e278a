package l1

import (
	"errors"
	"net"
	"net/http"
)

// IsNotFound reports whether err corresponds to the absent-slot data state
// (a query returning no record). GetTrade/GetActiveTrades never return this
// error themselves — absence is (nil, nil) — but a caller that wraps a raw
// GraphQL 404 before it reaches l1 can classify it here.
func IsNotFound(err error) bool {
	var httpErr *HTTPStatusError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether err is worth retrying: a network-level
// failure, a timeout, a pool-unreachable error, or a root-mismatch GraphQL
// error, as opposed to a rejected transaction or an invariant violation
// that will not resolve by retrying. GetActiveTrades (§4.2) uses it to
// label a single key's swallowed error in its log line; the coordinator
// does not call it.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if IsRootMismatch(err) {
		return true
	}
	return errors.Is(err, ErrPoolUnreachable)
}

// IsRootMismatch reports whether err is the "root-mismatch" GraphQL error
// class (spec.md §4.2): the off-chain root has advanced but the on-chain
// commitment has not yet caught up. Always transient.
func IsRootMismatch(err error) bool {
	var gqlErr *GraphQLError
	return errors.As(err, &gqlErr) && gqlErr.Code == "root-mismatch"
}

// GraphQLError wraps a single GraphQL response error, preserving its
// extensions.code so callers can classify it (e.g. IsRootMismatch).
type GraphQLError struct {
	Message string
	Code    string
}

func (e *GraphQLError) Error() string {
	return "l1: graphql error: " + e.Message
}

// HTTPStatusError wraps a non-2xx GraphQL transport response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return "l1: unexpected http status " + http.StatusText(e.StatusCode)
}
