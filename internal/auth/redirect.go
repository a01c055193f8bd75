package auth

import (
	"net/url"
	"strings"
)

const (
	invitationPath = "/invite/accept"
	dashboardPath  = "/dashboard"
)

// DashboardURL returns the default post-sign-in destination for baseURL.
func DashboardURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + dashboardPath
}

// ResolveRedirect picks where to send a user after authentication.
//
// Invitation-acceptance targets are preserved (relative ones are prefixed with
// baseURL). Any other relative target goes to the dashboard. Absolute targets
// are honored only when their origin equals baseURL's origin.
func ResolveRedirect(target, baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	dashboard := base + dashboardPath
	target = strings.TrimSpace(target)

	if strings.Contains(target, invitationPath) {
		if strings.HasPrefix(target, "/") {
			return base + target
		}
		if sameOrigin(target, base) {
			return target
		}
		return dashboard
	}
	if strings.HasPrefix(target, "/") {
		return dashboard
	}
	if sameOrigin(target, base) {
		return target
	}
	return dashboard
}

func sameOrigin(target, base string) bool {
	t, err := url.Parse(target)
	if err != nil || t.Scheme == "" || t.Host == "" {
		return false
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" || b.Host == "" {
		return false
	}
	return strings.EqualFold(t.Scheme, b.Scheme) && strings.EqualFold(t.Host, b.Host)
}
