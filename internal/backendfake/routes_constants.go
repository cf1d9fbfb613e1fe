package backendfake

// Route path constants, matching the festmatch backend
const (
	RouteAuthRefresh    = "/auth/refresh"
	RouteAuthKakaoLogin = "/auth/kakao/login"
	RouteAuthLogout     = "/auth/logout"
	RouteBridgeToken    = "/auth/firebase-token"

	RouteUsersMe        = "/users/me"
	RouteUsersMeCredits = "/users/me/credits"

	// Opaque protected endpoints used to exercise the client
	RouteCandidates = "/candidates"
	RouteSignals    = "/signals"

	// Public endpoint, no bearer required
	RouteFestivals = "/festivals"
)

const (
	refreshCookieName = "refresh_token"
	contentTypeJSON   = "application/json"
)
