package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// routeFields is filled by Route once mux has matched the request and read
// by Logger after the handler returns.
type routeFields struct {
	route     string
	sessionID string
}

type routeFieldsKey struct{}

func withRouteFields(r *http.Request) (*http.Request, *routeFields) {
	rf := &routeFields{}
	return r.WithContext(context.WithValue(r.Context(), routeFieldsKey{}, rf)), rf
}

// Route records the matched route template and the scan session ID path
// variable for the access log. Install it with mux.Router.Use.
func Route() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rf, ok := r.Context().Value(routeFieldsKey{}).(*routeFields); ok {
				rf.route = routeTemplate(r)
				rf.sessionID = mux.Vars(r)["id"]
			}
			next.ServeHTTP(w, r)
		})
	}
}
