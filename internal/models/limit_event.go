package models

import (
	"time"

	"gorm.io/gorm"
)

// Responses stored on a LimitEvent
const (
	ResponseNone        = ""
	ResponseAcknowledge = "acknowledge"
	ResponseExtend      = "extend"
	ResponseStopped     = "stopped" // monitoring stopped before an answer
)

// LimitEvent is one detected limit and how the user answered it
type LimitEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id" yaml:"id"`
	SessionID     string         `gorm:"not null;index" json:"session_id" yaml:"session_id"`
	Source        string         `gorm:"not null;index" json:"source" yaml:"source"` // "window", "process" or "manual"
	Marker        string         `gorm:"not null;default:''" json:"marker" yaml:"marker"`
	Reason        string         `gorm:"not null" json:"reason" yaml:"reason"`
	TriggeredAt   time.Time      `gorm:"not null;index" json:"triggered_at" yaml:"triggered_at"`
	Response      string         `gorm:"not null;default:''" json:"response" yaml:"response"`
	ExtendMinutes int            `gorm:"not null;default:0" json:"extend_minutes" yaml:"extend_minutes"`
	RespondedAt   *time.Time     `json:"responded_at,omitempty" yaml:"responded_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at" yaml:"-"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at" yaml:"-"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`
}

type SourceSummary struct {
	Source     string  `json:"source" yaml:"source"`
	Events     int     `json:"events" yaml:"events"`
	Percentage float64 `json:"percentage,omitempty" yaml:"percentage,omitempty"`
}

type MarkerSummary struct {
	Marker string `json:"marker" yaml:"marker"`
	Events int    `json:"events" yaml:"events"`
}

// ResponseCounts aggregates user answers over a period
type ResponseCounts struct {
	Acknowledged     int `json:"acknowledged" yaml:"acknowledged"`
	Extended         int `json:"extended" yaml:"extended"`
	Stopped          int `json:"stopped" yaml:"stopped"`
	Unanswered       int `json:"unanswered" yaml:"unanswered"`
	ExtensionMinutes int `json:"extension_minutes" yaml:"extension_minutes"`
}

type ReportPeriod struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Type  string    `json:"type" yaml:"type"` // "day", "week", "month"
}

type Report struct {
	Period      ReportPeriod    `json:"period" yaml:"period"`
	TotalEvents int             `json:"total_events" yaml:"total_events"`
	Responses   ResponseCounts  `json:"responses" yaml:"responses"`
	Sources     []SourceSummary `json:"sources" yaml:"sources"`
	Markers     []MarkerSummary `json:"markers" yaml:"markers"`
	ReadErrors  int64           `json:"read_errors" yaml:"read_errors"`
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
}
