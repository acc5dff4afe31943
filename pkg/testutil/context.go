package testutil

import (
	"net/http"

	"certregistry/pkg/requestcontext"
)

// WithActor puts the staff identity on the request the way RequireAuth
// does, for handler tests mounted without the auth middleware.
func WithActor(req *http.Request, actor, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor, role))
}
