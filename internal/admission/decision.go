package admission

import (
	"net/http"
	"sync"
)

// Reason explains a Decision. ReasonNone means the request was allowed.
type Reason string

const (
	ReasonNone        Reason = "none"
	ReasonRateLimited Reason = "rate_limited"
	ReasonForbidden   Reason = "forbidden"
	ReasonPolicyError Reason = "policy_error"
	ReasonNotFound    Reason = "not_found"
)

// HTTPStatus maps a denial reason to the status the handshake is answered
// with.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonNone:
		return http.StatusSwitchingProtocols
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonForbidden:
		return http.StatusForbidden
	case ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Decision is the outcome of one evaluation. An allowed decision may hold
// resources (connection slots) that Release frees.
type Decision struct {
	Allowed bool
	Reason  Reason
	release *releaser
}

type releaser struct {
	once sync.Once
	fn   func()
}

func Allow() Decision {
	return Decision{Allowed: true, Reason: ReasonNone}
}

// AllowWithRelease allows the request and runs fn exactly once on Release.
func AllowWithRelease(fn func()) Decision {
	d := Allow()
	if fn != nil {
		d.release = &releaser{fn: fn}
	}
	return d
}

func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Release frees whatever the decision acquired. Safe to call on any
// decision, any number of times.
func (d Decision) Release() {
	if d.release != nil {
		d.release.once.Do(d.release.fn)
	}
}

func (d Decision) HTTPStatus() int {
	return d.Reason.HTTPStatus()
}
