package admission

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// attack signatures checked against the decoded query and a few
// client-controlled headers
var shieldSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\b[\s\S]*\bselect\b`),
	regexp.MustCompile(`(?i)\b(or|and)\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+`),
	regexp.MustCompile(`(?i)(;|'|")\s*(drop|delete|insert|update)\s+`),
	regexp.MustCompile(`(?i)--\s*$|/\*.*\*/`),
	regexp.MustCompile(`(?i)<\s*script\b|javascript:|\bon(error|load|click)\s*=`),
	regexp.MustCompile(`(\.\./|\.\.\\)`),
	regexp.MustCompile(`(?i)/etc/passwd|\bcmd\.exe\b`),
	regexp.MustCompile("\x00"),
}

var shieldHeaders = []string{"User-Agent", "Referer", "Origin", "Cookie"}

// ShieldPolicy rejects requests carrying common injection or traversal
// payloads.
type ShieldPolicy struct{}

func NewShieldPolicy() ShieldPolicy { return ShieldPolicy{} }

func (ShieldPolicy) Evaluate(_ context.Context, req Request) (Decision, error) {
	candidates := []string{req.Path}
	if req.Query != "" {
		candidates = append(candidates, req.Query)
		if decoded, err := url.QueryUnescape(req.Query); err == nil {
			candidates = append(candidates, decoded)
		}
	}
	for _, name := range shieldHeaders {
		if v := req.Header.Get(name); v != "" {
			candidates = append(candidates, v)
		}
	}

	for _, s := range candidates {
		if matchesSignature(s) {
			return Deny(ReasonForbidden), nil
		}
	}
	return Allow(), nil
}

func matchesSignature(s string) bool {
	s = strings.TrimSpace(s)
	for _, re := range shieldSignatures {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
