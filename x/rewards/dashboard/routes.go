package dashboard

// Route patterns for the dashboard HTTP surface.
const (
	routeScans        = "/v1/scans"
	routeScanByID     = "/v1/scans/{id}"
	routeScanDecision = "/v1/scans/{id}/decision"
	routeScanCancel   = "/v1/scans/{id}/cancel"
	routeContracts    = "/v1/contracts"
)

// Route names for mux URL building.
const (
	routeNameStartScan  = "scans_start"
	routeNameGetScan    = "scans_get"
	routeNameDecideScan = "scans_decide"
	routeNameCancelScan = "scans_cancel"
	routeNameContracts  = "contracts_list"
)
