package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// chiRouteContext returns the matched route pattern (e.g.
// "/interview/{id}/stream") if chi has already resolved one for this
// request, so metrics label cardinality tracks routes, not raw paths.
func chiRouteContext(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return ""
	}
	return rc.RoutePattern()
}
