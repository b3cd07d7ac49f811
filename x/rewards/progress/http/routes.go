package http

import "github.com/compose-network/prover-rewards/x/rewards/progress"

// Route patterns for the checkpoint HTTP surface.
const (
	routeProgress = progress.CheckpointPath
)

// Route names for mux URL building.
const (
	routeNameGetProgress = "progress_get"
	routeNamePutProgress = "progress_put"
)
