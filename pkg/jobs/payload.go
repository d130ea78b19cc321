// Package jobs provides Payload, a generic dispatch.Job implementation for
// work submitted as opaque JSON values — the shape used by the submit CLI
// command and by anything else that does not need a typed Job of its own.
package jobs

import (
	"encoding/json"

	"github.com/ChuLiYu/beaver-queue/internal/dispatch"
)

// Payload is a Job whose call value and result value are both raw JSON: the
// call is whatever was read from the user's input file, and the result is
// the worker's response, unmarshalled into an any via the standard decoding
// rules (map[string]any, []any, float64, string, bool, nil).
//
// Payload must be used as a pointer (*Payload) wherever job identity
// matters — JobManager keys its reverse index on Job identity, and two
// Payloads with equal contents are still two distinct jobs.
type Payload struct {
	Call_ json.RawMessage
}

// NewPayload wraps an already-encoded JSON call value.
func NewPayload(call json.RawMessage) *Payload {
	return &Payload{Call_: call}
}

// Call implements dispatch.Job.
func (p *Payload) Call() any {
	return p.Call_
}

// Result implements dispatch.Job. Decode errors surface as the string
// fallback so a misbehaving worker never panics the dispatch engine; the
// malformed bytes are preserved verbatim for the caller to inspect.
func (p *Payload) Result(response json.RawMessage) any {
	var v any
	if err := json.Unmarshal(response, &v); err != nil {
		return string(response)
	}
	return v
}

// FromJSONArray decodes a JSON array of call payloads into one Payload per
// element, preserving source order — used by the submit CLI command to
// turn an input file into a job set.
func FromJSONArray(data []byte) ([]*Payload, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	payloads := make([]*Payload, len(raw))
	for i, r := range raw {
		payloads[i] = NewPayload(r)
	}
	return payloads, nil
}

// ToJobIterator adapts a []*Payload into the JobIterator Master.Submit
// expects.
func ToJobIterator(payloads []*Payload) dispatch.JobIterator {
	jobs := make([]dispatch.Job, len(payloads))
	for i, p := range payloads {
		jobs[i] = p
	}
	return dispatch.NewSliceIterator(jobs)
}
