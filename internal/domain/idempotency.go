package domain

import "encoding/json"

// StoredResponse is the recorded outcome of a previously completed request,
// replayed verbatim when the same idempotency key and payload arrive again.
type StoredResponse struct {
	Key            string          `json:"key"`
	RequestHash    string          `json:"request_hash"`
	Status         string          `json:"status"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
	ResponseStatus int             `json:"response_status,omitempty"`
}
