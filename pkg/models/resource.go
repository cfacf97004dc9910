package models

import "time"

// ResourceSnapshot is a point-in-time view of system memory used for
// admission decisions. Snapshots are recomputed for each decision and never
// cached across scheduling cycles.
type ResourceSnapshot struct {
	// AvailableMB is the memory currently available, in megabytes.
	AvailableMB uint64 `json:"available_mb"`
	// UsedPercent is the fraction of total memory in use, 0-100.
	UsedPercent float64 `json:"used_percent"`
	// SafeForAdmission is true when available memory is above the safe
	// threshold.
	SafeForAdmission bool `json:"safe_for_admission"`
	// MaxAdmittable is the number of additional agents that can be admitted
	// without crossing the reserved buffer.
	MaxAdmittable int `json:"max_admittable"`
	// TakenAt is when the snapshot was captured.
	TakenAt time.Time `json:"taken_at"`
}
