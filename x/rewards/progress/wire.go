package progress

// CheckpointResponse is the JSON body of a checkpoint read.
// LastEpoch is null when nothing has been checkpointed.
type CheckpointResponse struct {
	LastEpoch         *int64 `json:"lastEpoch"`
	CumulativeRewards string `json:"cumulativeRewards"`
}

// CheckpointRequest is the JSON body of a checkpoint write. All fields are required.
type CheckpointRequest struct {
	Prover            string  `json:"prover"`
	Contract          string  `json:"contract"`
	LastEpoch         *int64  `json:"lastEpoch"`
	CumulativeRewards *string `json:"cumulativeRewards"`
}

// NewCheckpointResponse renders a record for the checkpoint API.
func NewCheckpointResponse(rec Record) CheckpointResponse {
	resp := CheckpointResponse{CumulativeRewards: rec.Cumulative().String()}
	if rec.HasProgress() {
		last := rec.LastEpoch
		resp.LastEpoch = &last
	}
	return resp
}
