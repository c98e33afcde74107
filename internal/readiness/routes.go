package readiness

import "github.com/untreu2/divine-state/internal/nostr"

// Route identifies a top-level tab or page of the app shell.
type Route string

const (
	RouteDiscovery Route = "discovery"
	RouteProfile   Route = "profile"
	RouteCamera    Route = "camera"
	RouteSettings  Route = "settings"
)

// PageContext is the current routing position. Pubkey is set only for routes
// parameterized by an author.
type PageContext struct {
	Route  Route
	Pubkey nostr.Pubkey
}

// ContextProvider reports the current page context, if any.
type ContextProvider interface {
	CurrentPage() (PageContext, bool)
}

// RouteGates answers visibility questions from the page context. Absent or
// non-matching context always answers false; no provider state ever panics
// these calls.
type RouteGates struct {
	provider ContextProvider
}

// NewRouteGates constructs route gates over the provider.
func NewRouteGates(provider ContextProvider) *RouteGates {
	return &RouteGates{provider: provider}
}

// IsDiscoveryTabActive reports whether the discovery tab is the current page.
func (r *RouteGates) IsDiscoveryTabActive() bool {
	return r.isActive(RouteDiscovery, "")
}

// IsProfileTabActive reports whether the profile page for the given author is
// the current page.
func (r *RouteGates) IsProfileTabActive(author nostr.Pubkey) bool {
	return r.isActive(RouteProfile, author)
}

// IsCameraActive reports whether the camera page is the current page.
func (r *RouteGates) IsCameraActive() bool {
	return r.isActive(RouteCamera, "")
}

func (r *RouteGates) isActive(route Route, author nostr.Pubkey) bool {
	if r == nil || r.provider == nil {
		return false
	}
	page, ok := r.provider.CurrentPage()
	if !ok {
		return false
	}
	if page.Route != route {
		return false
	}
	if author != "" && page.Pubkey != author {
		return false
	}
	return true
}
