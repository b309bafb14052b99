package domain

import "fmt"

// FailureReason classifies why an upstream fetch produced no payload.
type FailureReason string

const (
	FailTimeout FailureReason = "Timeout"
	FailHTTP    FailureReason = "HttpStatus"
	FailDecode  FailureReason = "Decode"
	FailNetwork FailureReason = "Network"
)

// LookupResult is the outcome of a single upstream fetch. Exactly one of
// the two cases holds: Reason == "" with a decoded Payload, or a non-empty
// Reason (Status is set only for FailHTTP). The lookup client never
// returns anything outside this union.
type LookupResult struct {
	Payload any
	Reason  FailureReason
	Status  int
}

// OK reports whether the fetch yielded a payload.
func (r LookupResult) OK() bool { return r.Reason == "" }

// Code renders the failure as the reason code shown to end users.
// This is the only upstream error text that ever reaches a chat.
func (r LookupResult) Code() string {
	if r.Reason == FailHTTP {
		return fmt.Sprintf("HTTP %d", r.Status)
	}
	return string(r.Reason)
}
