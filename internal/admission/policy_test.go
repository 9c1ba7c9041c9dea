package admission

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecision_ReleaseIsIdempotent(t *testing.T) {
	released := 0
	d := AllowWithRelease(func() { released++ })

	d.Release()
	d.Release()
	copied := d
	copied.Release()

	assert.Equal(t, 1, released)
	Deny(ReasonForbidden).Release()
	Allow().Release()
}

func TestChain_FirstDenialWinsAndReleases(t *testing.T) {
	released := 0
	acquiring := PolicyFunc(func(context.Context, Request) (Decision, error) {
		return AllowWithRelease(func() { released++ }), nil
	})
	denying, _ := fixedPolicy(Deny(ReasonForbidden), nil)
	never, neverCalls := fixedPolicy(Allow(), nil)

	d, err := Chain{acquiring, denying, never}.Evaluate(context.Background(), wsRequest())

	require.NoError(t, err)
	assert.Equal(t, ReasonForbidden, d.Reason)
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, *neverCalls)
}

func TestChain_ErrorReleases(t *testing.T) {
	released := 0
	acquiring := PolicyFunc(func(context.Context, Request) (Decision, error) {
		return AllowWithRelease(func() { released++ }), nil
	})
	failing, _ := fixedPolicy(Decision{}, errors.New("boom"))

	_, err := Chain{acquiring, failing}.Evaluate(context.Background(), wsRequest())

	assert.Error(t, err)
	assert.Equal(t, 1, released)
}

func TestChain_AllowedReleasesEverything(t *testing.T) {
	released := 0
	acquiring := PolicyFunc(func(context.Context, Request) (Decision, error) {
		return AllowWithRelease(func() { released++ }), nil
	})

	d, err := Chain{acquiring, acquiring}.Evaluate(context.Background(), wsRequest())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, released)

	d.Release()
	d.Release()
	assert.Equal(t, 2, released)
}

func TestChain_Empty(t *testing.T) {
	d, err := Chain{}.Evaluate(context.Background(), wsRequest())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestShieldPolicy(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		header  string
		allowed bool
	}{
		{"clean", "token=abc", "", true},
		{"union select", "id=1%20UNION%20SELECT%20password", "", false},
		{"tautology", "id=1' OR 1=1", "", false},
		{"script tag", "name=%3Cscript%3Ealert(1)%3C/script%3E", "", false},
		{"traversal", "file=../../etc/passwd", "", false},
		{"header injection", "", "<script>alert(1)</script>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := wsRequest()
			req.Query = tt.query
			if tt.header != "" {
				req.Header = http.Header{"Referer": []string{tt.header}}
			}

			d, err := NewShieldPolicy().Evaluate(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, ReasonForbidden, d.Reason)
			}
		})
	}
}

func TestBotPolicy(t *testing.T) {
	policy := NewBotPolicy(CategorySearchEngine, CategoryPreview)

	tests := []struct {
		ua      string
		allowed bool
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36", true},
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"Slackbot-LinkExpanding 1.0 (+https://api.slack.com/robots)", true},
		{"", false},
		{"curl/8.4.0", false},
		{"python-requests/2.31.0", false},
		{"Go-http-client/1.1", false},
		{"Mozilla/5.0 (compatible; SomeCrawler/1.0)", false},
		{"Mozilla/5.0 HeadlessChrome/120.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.ua, func(t *testing.T) {
			req := wsRequest()
			req.Header = http.Header{"User-Agent": []string{tt.ua}}

			d, err := policy.Evaluate(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
		})
	}
}

func TestBotPolicy_NoAllowedCategories(t *testing.T) {
	req := wsRequest()
	req.Header = http.Header{"User-Agent": []string{"Googlebot/2.1"}}

	d, err := NewBotPolicy().Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRateLimitPolicy_BurstThenRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := NewRateLimitPolicy(1, 2, clock)
	req := wsRequest()

	for range 2 {
		d, err := policy.Evaluate(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := policy.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ReasonRateLimited, d.Reason)
	assert.Equal(t, http.StatusTooManyRequests, d.HTTPStatus())

	other := wsRequest()
	other.RemoteIP = "192.0.2.99"
	d, _ = policy.Evaluate(context.Background(), other)
	assert.True(t, d.Allowed, "limits are per IP")

	clock.Advance(time.Second)
	d, _ = policy.Evaluate(context.Background(), req)
	assert.True(t, d.Allowed)
}

func TestRateLimitPolicy_EvictsIdleEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := NewRateLimitPolicy(1, 1, clock)

	req := wsRequest()
	_, _ = policy.Evaluate(context.Background(), req)
	assert.Equal(t, 1, policy.ActiveLimiters())

	clock.Advance(limiterIdleTTL + limiterCleanupInterval + time.Second)
	other := wsRequest()
	other.RemoteIP = "192.0.2.99"
	_, _ = policy.Evaluate(context.Background(), other)

	assert.Equal(t, 1, policy.ActiveLimiters())
}

func TestConnectionCaps(t *testing.T) {
	caps := NewConnectionCaps(3, 2)
	a := wsRequest()
	b := wsRequest()
	b.RemoteIP = "192.0.2.20"

	d1, _ := caps.Evaluate(context.Background(), a)
	d2, _ := caps.Evaluate(context.Background(), a)
	require.True(t, d1.Allowed)
	require.True(t, d2.Allowed)

	d3, _ := caps.Evaluate(context.Background(), a)
	assert.Equal(t, ReasonRateLimited, d3.Reason, "per-IP cap")
	assert.Equal(t, int64(2), caps.Current())

	d4, _ := caps.Evaluate(context.Background(), b)
	require.True(t, d4.Allowed)
	d5, _ := caps.Evaluate(context.Background(), b)
	assert.Equal(t, ReasonRateLimited, d5.Reason, "global cap")

	d1.Release()
	d1.Release()
	assert.Equal(t, int64(2), caps.Current())
	assert.Equal(t, 1, caps.CountFor(a.RemoteIP))

	d6, _ := caps.Evaluate(context.Background(), a)
	assert.True(t, d6.Allowed)
}
