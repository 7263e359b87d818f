package domain

// Status is the connectivity signal exposed to the presentation layer.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
	StatusDegraded   Status = "degraded"
)
