package models

import (
	"fmt"
	"strings"
	"time"
)

// ReportKind classifies an incident report.
type ReportKind string

const (
	KindDeviation ReportKind = "deviation"
	KindDelay     ReportKind = "delay"
	KindFailure   ReportKind = "failure"
	KindOther     ReportKind = "other"
)

var kindAliases = map[string]ReportKind{
	"deviation": KindDeviation,
	"desvio":    KindDeviation,
	"delay":     KindDelay,
	"retraso":   KindDelay,
	"failure":   KindFailure,
	"falla":     KindFailure,
	"other":     KindOther,
	"otro":      KindOther,
}

// ParseReportKind maps a kind tag, English or Spanish, to a ReportKind.
func ParseReportKind(tag string) (ReportKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(tag))]
	return k, ok
}

// NeedsCorridor reports whether the kind is tied to the emitter's corridor.
func (k ReportKind) NeedsCorridor() bool {
	return k == KindDelay || k == KindFailure
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Report is the canonical persisted incident.
type Report struct {
	ID                   int64      `json:"id"`
	ExternalID           *string    `json:"external_id,omitempty"`
	Kind                 ReportKind `json:"kind"`
	EmitterUserID        int64      `json:"emitter_user_id"`
	AffectedCorridorID   *int64     `json:"affected_corridor_id,omitempty"`
	AffectedRouteID      *int64     `json:"affected_route_id,omitempty"`
	InitialStopID        *int64     `json:"initial_stop_id,omitempty"`
	FinalStopID          *int64     `json:"final_stop_id,omitempty"`
	DelayMinutes         *int64     `json:"delay_minutes,omitempty"`
	Description          string     `json:"description"`
	Message              string     `json:"message"`
	IsCritical           bool       `json:"is_critical"`
	RequiresIntervention bool       `json:"requires_intervention"`
	CreatedAt            time.Time  `json:"created_at"`

	// Reference is where the incident happened, when the emitter sent a location.
	// Not persisted.
	Reference *Point `json:"-"`
}

// LogFields returns the identifying fields used in structured log entries.
func (r Report) LogFields() map[string]interface{} {
	f := map[string]interface{}{
		"report_id": r.ID,
		"kind":      string(r.Kind),
		"emitter":   r.EmitterUserID,
	}
	if r.ExternalID != nil {
		f["external_id"] = *r.ExternalID
	}
	return f
}

func (r Report) String() string {
	return fmt.Sprintf("report %d (%s)", r.ID, r.Kind)
}
