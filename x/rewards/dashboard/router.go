package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeScans, h.handleStart).Methods(http.MethodPost).Name(routeNameStartScan)
	r.HandleFunc(routeScanByID, h.handleGet).Methods(http.MethodGet).Name(routeNameGetScan)
	r.HandleFunc(routeScanDecision, h.handleDecide).Methods(http.MethodPost).Name(routeNameDecideScan)
	r.HandleFunc(routeScanCancel, h.handleCancel).Methods(http.MethodPost).Name(routeNameCancelScan)
	r.HandleFunc(routeContracts, h.handleContracts).Methods(http.MethodGet).Name(routeNameContracts)
}
