package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeProgress, h.handleGet).Methods(http.MethodGet).Name(routeNameGetProgress)
	r.HandleFunc(routeProgress, h.handlePut).Methods(http.MethodPost).Name(routeNamePutProgress)
}
