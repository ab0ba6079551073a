package models

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool {
	for _, v := range Severities {
		if s == v {
			return true
		}
	}
	return false
}

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	return s == AlertActive || s == AlertResolved
}

// Alert is a single incident raised by the event feed. ResolvedAt is set
// exactly when Status is AlertResolved and never precedes CreatedAt.
// Read mirrors ReadAt != nil and is independent of Status.
type Alert struct {
	ID                  string      `json:"id"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Severity            Severity    `json:"severity"`
	Category            string      `json:"category"`
	Status              AlertStatus `json:"status"`
	Location            string      `json:"location,omitempty"`
	DeviceID            string      `json:"device_id,omitempty"`
	EstimatedResolution string      `json:"estimated_resolution,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	ResolvedAt          *time.Time  `json:"resolved_at,omitempty"`
	Read                bool        `json:"read"`
	ReadAt              *time.Time  `json:"read_at,omitempty"`
}

// NewAlert is the payload accepted from the external feed.
type NewAlert struct {
	ID                  string      `json:"id,omitempty"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Severity            Severity    `json:"severity"`
	Category            string      `json:"category"`
	Status              AlertStatus `json:"status,omitempty"`
	Location            string      `json:"location,omitempty"`
	DeviceID            string      `json:"device_id,omitempty"`
	EstimatedResolution string      `json:"estimated_resolution,omitempty"`
	CreatedAt           time.Time   `json:"created_at,omitempty"`
	ResolvedAt          *time.Time  `json:"resolved_at,omitempty"`
}

// AlertFilter is a conjunction; empty fields match everything.
type AlertFilter struct {
	Query    string
	Severity Severity
	Category string
	Status   AlertStatus
	Unread   bool
}

type AlertSummary struct {
	ActiveCount   int              `json:"active_count"`
	BySeverity    map[Severity]int `json:"by_severity"`
	ResolvedCount int              `json:"resolved_count"`
	AvgResolution *time.Duration   `json:"avg_resolution_ns,omitempty"`
	UnreadCount   int              `json:"unread_count"`
}

type DeviceStatus string

const (
	DeviceOperational DeviceStatus = "operational"
	DeviceMaintenance DeviceStatus = "maintenance"
	DeviceOffline     DeviceStatus = "offline"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceOperational, DeviceMaintenance, DeviceOffline:
		return true
	}
	return false
}

type ControlMode string

const (
	ModeAutomatic ControlMode = "automatic"
	ModeManual    ControlMode = "manual"
)

type Phase string

const (
	PhaseGreenNS  Phase = "green_ns"
	PhaseYellowNS Phase = "yellow_ns"
	PhaseRedNS    Phase = "red_ns"
	PhaseGreenEW  Phase = "green_ew"
	PhaseYellowEW Phase = "yellow_ew"
	PhaseRedEW    Phase = "red_ew"
	PhaseRedAll   Phase = "red_all"
)

type TrafficLight struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Location       string       `json:"location"`
	Lat            float64      `json:"lat"`
	Lng            float64      `json:"lng"`
	Status         DeviceStatus `json:"status"`
	Mode           ControlMode  `json:"mode"`
	Phase          Phase        `json:"phase"`
	HoldSeconds    int          `json:"hold_seconds"`
	PhaseChangedAt time.Time    `json:"phase_changed_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type DiagnosticTest struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
}

type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type NodeStatus string

const (
	NodeUnknown  NodeStatus = "unknown"
	NodeHealthy  NodeStatus = "healthy"
	NodeWarning  NodeStatus = "warning"
	NodeCritical NodeStatus = "critical"
)

// NodeReport is one utilisation sample sent by or fetched from an edge node.
// Percentages are in [0, 100]; Network is link quality, higher is better.
type NodeReport struct {
	NodeID        string    `json:"node_id"`
	CPU           float64   `json:"cpu"`
	Memory        float64   `json:"memory"`
	Storage       float64   `json:"storage"`
	Network       float64   `json:"network"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Services      []string  `json:"services"`
	At            time.Time `json:"at,omitempty"`
}

// NodeHealth is the latest known state of an inventory node. Status is
// NodeUnknown until the first report arrives.
type NodeHealth struct {
	Node
	Status        NodeStatus `json:"status"`
	CPU           float64    `json:"cpu"`
	Memory        float64    `json:"memory"`
	Storage       float64    `json:"storage"`
	Network       float64    `json:"network"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Uptime        string     `json:"uptime"`
	Services      []string   `json:"services"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// ScopeAll targets every node in the inventory.
const ScopeAll = "all"

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunPassed    RunStatus = "passed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool {
	return s == RunPassed || s == RunFailed || s == RunCancelled
}

type RunMetrics struct {
	LatencyMs  float64 `json:"latency_ms"`
	Throughput float64 `json:"throughput"`
	ErrorRate  float64 `json:"error_rate"`
}

type TestRun struct {
	ID          string     `json:"id"`
	TestID      string     `json:"test_id"`
	Scope       string     `json:"scope"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Details     string     `json:"details,omitempty"`
	Metrics     RunMetrics `json:"metrics"`
}

type Channel string

const (
	ChannelAll     Channel = "all"
	ChannelTraffic Channel = "traffic"
	ChannelMobile  Channel = "mobile"
	ChannelRadio   Channel = "radio"
	ChannelSocial  Channel = "social"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type BroadcastStatus string

const BroadcastSent BroadcastStatus = "sent"

type BroadcastMessage struct {
	ID              string          `json:"id"`
	Body            string          `json:"body"`
	Channels        []Channel       `json:"channels"`
	Priority        Priority        `json:"priority"`
	DurationMinutes int             `json:"duration_minutes"`
	CreatedAt       time.Time       `json:"created_at"`
	Status          BroadcastStatus `json:"status"`
}
