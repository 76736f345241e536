package models

import "time"

// AuditEntry records a single request and the guard decision taken for it.
type AuditEntry struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	PrincipalID    *int64    `json:"principal_id,omitempty"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	Decision       string    `json:"decision"`
	Reason         string    `json:"reason,omitempty"`
	ResponseCode   int       `json:"response_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ClientIP       string    `json:"client_ip"`
}
