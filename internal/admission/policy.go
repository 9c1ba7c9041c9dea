package admission

import (
	"context"
	"net"
	"net/http"
)

// Request is the part of an upgrade request admission looks at.
type Request struct {
	Path     string
	Query    string
	Header   http.Header
	RemoteIP string
}

// NewRequest extracts a Request from r. The remote IP comes from
// RemoteAddr; proxies are expected to rewrite it before this point.
func NewRequest(r *http.Request) Request {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return Request{
		Path:     r.URL.Path,
		Query:    r.URL.RawQuery,
		Header:   r.Header,
		RemoteIP: ip,
	}
}

// Policy decides on a request that already passed the path check. A
// returned error means the policy could not decide and is reported as
// ReasonPolicyError, never as a client denial.
type Policy interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, req Request) (Decision, error)

func (f PolicyFunc) Evaluate(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Chain evaluates policies in order. The first denial or error wins, and
// anything already acquired by earlier policies is released.
type Chain []Policy

func (c Chain) Evaluate(ctx context.Context, req Request) (Decision, error) {
	var acquired []Decision
	releaseAll := func() {
		for _, d := range acquired {
			d.Release()
		}
	}

	for _, p := range c {
		d, err := p.Evaluate(ctx, req)
		if err != nil {
			releaseAll()
			return Decision{}, err
		}
		if !d.Allowed {
			releaseAll()
			return d, nil
		}
		acquired = append(acquired, d)
	}

	if len(acquired) == 0 {
		return Allow(), nil
	}
	return AllowWithRelease(releaseAll), nil
}
