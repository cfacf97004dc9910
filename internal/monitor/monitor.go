// Package monitor samples system memory and derives admission limits.
package monitor

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ShayCichocki/dispatch/pkg/models"
)

// Thresholds holds the memory limits that drive admission decisions.
// All values are megabytes.
type Thresholds struct {
	// SafeMB is the minimum available memory for normal admission.
	SafeMB uint64
	// WarningMB marks degraded headroom; admission continues but is logged.
	WarningMB uint64
	// CriticalMB marks exhaustion; nothing below this admits.
	CriticalMB uint64
	// ReservedBufferMB is memory never handed to agents.
	ReservedBufferMB uint64
	// MemoryPerAgentMB is the budget assumed per concurrent agent.
	MemoryPerAgentMB uint64
}

// DefaultThresholds returns conservative defaults suitable for a developer
// machine.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SafeMB:           2048,
		WarningMB:        1024,
		CriticalMB:       512,
		ReservedBufferMB: 1024,
		MemoryPerAgentMB: 512,
	}
}

// Monitor provides point-in-time resource snapshots.
// Snapshot must never block on anything but the OS read and must never panic.
type Monitor interface {
	Snapshot() models.ResourceSnapshot
}

// System reads live memory statistics from the operating system.
type System struct {
	thresholds Thresholds
}

// NewSystem creates a Monitor backed by OS memory readings.
func NewSystem(t Thresholds) *System {
	return &System{thresholds: t}
}

// Snapshot reads system memory and computes admission limits.
// If the OS query fails, a conservative non-admitting snapshot is returned.
func (s *System) Snapshot() models.ResourceSnapshot {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return Conservative()
	}
	return Compute(vm.Available/(1024*1024), vm.UsedPercent, s.thresholds)
}

// Compute derives a snapshot from a raw memory reading. It is a pure
// function so admission math stays deterministic under test.
func Compute(availableMB uint64, usedPercent float64, t Thresholds) models.ResourceSnapshot {
	snap := models.ResourceSnapshot{
		AvailableMB: availableMB,
		UsedPercent: usedPercent,
		TakenAt:     time.Now(),
	}

	snap.SafeForAdmission = availableMB > t.SafeMB

	if t.MemoryPerAgentMB > 0 && availableMB > t.ReservedBufferMB {
		snap.MaxAdmittable = int((availableMB - t.ReservedBufferMB) / t.MemoryPerAgentMB)
	}

	return snap
}

// Conservative returns a snapshot that admits nothing. Used when the
// underlying OS query fails so the scheduler degrades instead of crashing.
func Conservative() models.ResourceSnapshot {
	return models.ResourceSnapshot{
		AvailableMB:      0,
		UsedPercent:      100,
		SafeForAdmission: false,
		MaxAdmittable:    0,
		TakenAt:          time.Now(),
	}
}

// Stub is a Monitor with settable readings for deterministic tests and for
// embedding the scheduler where live sampling is unwanted.
type Stub struct {
	mu         sync.RWMutex
	thresholds Thresholds
	available  uint64
	used       float64
}

// NewStub creates a stub monitor reporting the given available memory.
func NewStub(availableMB uint64, t Thresholds) *Stub {
	return &Stub{thresholds: t, available: availableMB}
}

// SetAvailable updates the reported available memory.
func (s *Stub) SetAvailable(availableMB uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = availableMB
}

// SetUsedPercent updates the reported used percentage.
func (s *Stub) SetUsedPercent(used float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = used
}

// Snapshot computes a snapshot from the stubbed readings.
func (s *Stub) Snapshot() models.ResourceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Compute(s.available, s.used, s.thresholds)
}
