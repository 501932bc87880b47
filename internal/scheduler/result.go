package scheduler

import "encoding/json"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RefreshResult reports the outcome of a refresh. Warning carries best-effort
// persistence failures of an otherwise successful refresh.
type RefreshResult struct {
	Status   string
	OldCount int
	NewCount int
	Added    int
	Message  string
	Warning  string
}

func errorResult(err error) RefreshResult {
	return RefreshResult{Status: StatusError, Message: err.Error()}
}

// MarshalJSON renders the success and error variants with their own fields.
func (r RefreshResult) MarshalJSON() ([]byte, error) {
	if r.Status == StatusError {
		return json.Marshal(struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}{r.Status, r.Message})
	}
	return json.Marshal(struct {
		Status   string `json:"status"`
		OldCount int    `json:"old_count"`
		NewCount int    `json:"new_count"`
		Added    int    `json:"added"`
		Warning  string `json:"warning,omitempty"`
	}{r.Status, r.OldCount, r.NewCount, r.Added, r.Warning})
}
