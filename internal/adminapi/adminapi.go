// Package adminapi is the remote control protocol the submit and status CLI
// commands use to reach a running master: one JSON request per connection,
// one JSON response, same line-JSON style as the worker wire protocol
// (internal/transport) rather than a second wire format or the teacher's
// gRPC admin path. See DESIGN.md for why gRPC is not reintroduced here.
package adminapi

import "encoding/json"

// Request is the single envelope every admin connection sends, exactly
// once, before reading Response and disconnecting.
type Request struct {
	Op   string          `json:"op"`
	Jobs json.RawMessage `json:"jobs,omitempty"` // for op == "submit": a JSON array of call payloads
}

// Response is the single envelope every admin connection receives.
type Response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Stats  *Stats `json:"stats,omitempty"`  // for op == "status"
	Queued int    `json:"queued,omitempty"` // for op == "submit": number of jobs accepted
}

// Stats mirrors dispatch.JobManager.Stats plus the connection-level facts a
// remote caller cannot otherwise observe.
type Stats struct {
	ActiveJobSets    int `json:"active_job_sets"`
	PendingJobs      int `json:"pending_jobs"`
	WorkersConnected int `json:"workers_connected"`
}

const (
	// OpSubmit submits Request.Jobs as one new job set.
	OpSubmit = "submit"
	// OpStatus requests a Stats snapshot.
	OpStatus = "status"
)
