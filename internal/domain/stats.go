package domain

import "time"

// HealthStatus is the derived health classification of the share subsystem
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
)

// AccessCounts splits access counts by type
type AccessCounts struct {
	Views     int64 `json:"views"`
	Downloads int64 `json:"downloads"`
}

// Total returns views plus downloads
func (c AccessCounts) Total() int64 {
	return c.Views + c.Downloads
}

// ShareCounts holds aggregate share counts
type ShareCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// AnalyticsSummary holds usage figures for a single share
type AnalyticsSummary struct {
	ShareID                int64        `json:"share_id"`
	Active                 bool         `json:"active"`
	Expired                bool         `json:"expired"`
	AccessCount            int64        `json:"access_count"`
	MaxAccess              *int64       `json:"max_access,omitempty"`
	RemainingAccesses      *int64       `json:"remaining_accesses,omitempty"`
	Accesses               AccessCounts `json:"accesses"`
	UniqueIPs              int64        `json:"unique_ips"`
	LastAccessedAt         *time.Time   `json:"last_accessed_at,omitempty"`
	Denials                int64        `json:"denials"`
	NotificationsSent      int64        `json:"notifications_sent"`
	NotificationsDelivered int64        `json:"notifications_delivered"`
}

// ShareAccessStats is the raw per-share access aggregate read from the store
type ShareAccessStats struct {
	Accesses       AccessCounts
	UniqueIPs      int64
	LastAccessedAt *time.Time
	Denials        int64
}

// NotificationStats is the raw per-share notification aggregate
type NotificationStats struct {
	Sent      int64
	Delivered int64
}

// IPActivity is the access activity of one accessor IP inside a window
type IPActivity struct {
	IP       string `json:"ip"`
	Accesses int64  `json:"accesses"`
	Denials  int64  `json:"denials"`
	Shares   int64  `json:"shares"`
}

// SuspiciousReport lists IPs whose activity met the threshold
type SuspiciousReport struct {
	Since     time.Time    `json:"since"`
	Window    string       `json:"window"`
	Threshold int64        `json:"threshold"`
	Flagged   []IPActivity `json:"flagged"`
}

// CleanupReport lists how many rows each retention rule removed
type CleanupReport struct {
	AccessLogsDeleted    int64    `json:"access_logs_deleted"`
	DenialsDeleted       int64    `json:"denials_deleted"`
	NotificationsDeleted int64    `json:"notifications_deleted"`
	Errors               []string `json:"errors,omitempty"`
}

// UsageReport is the global usage and health summary
type UsageReport struct {
	GeneratedAt    time.Time    `json:"generated_at"`
	Shares         ShareCounts  `json:"shares"`
	Last24h        AccessCounts `json:"last_24h"`
	Last7d         AccessCounts `json:"last_7d"`
	SuspiciousIPs  int          `json:"suspicious_ips"`
	QueryLatencyMs int64        `json:"query_latency_ms"`
	Health         HealthStatus `json:"health"`
	HealthReasons  []string     `json:"health_reasons,omitempty"`
}
