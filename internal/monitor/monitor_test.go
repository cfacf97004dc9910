package monitor

import "testing"

func testThresholds() Thresholds {
	return Thresholds{
		SafeMB:           2000,
		WarningMB:        1000,
		CriticalMB:       500,
		ReservedBufferMB: 1000,
		MemoryPerAgentMB: 500,
	}
}

func TestComputeSafe(t *testing.T) {
	snap := Compute(4000, 50, testThresholds())

	if !snap.SafeForAdmission {
		t.Error("expected safe admission at 4000MB available")
	}
	// (4000 - 1000) / 500 = 6
	if snap.MaxAdmittable != 6 {
		t.Errorf("expected 6 admittable agents, got %d", snap.MaxAdmittable)
	}
}

func TestComputeBelowSafeThreshold(t *testing.T) {
	snap := Compute(1500, 80, testThresholds())

	if snap.SafeForAdmission {
		t.Error("expected unsafe admission below safe threshold")
	}
	// Ceiling is still derived: (1500 - 1000) / 500 = 1.
	if snap.MaxAdmittable != 1 {
		t.Errorf("expected 1 admittable agent, got %d", snap.MaxAdmittable)
	}
}

func TestComputeBelowReservedBuffer(t *testing.T) {
	snap := Compute(800, 95, testThresholds())

	if snap.MaxAdmittable != 0 {
		t.Errorf("expected 0 admittable agents, got %d", snap.MaxAdmittable)
	}
}

func TestComputeExactThresholdNotSafe(t *testing.T) {
	// available must be strictly greater than the safe threshold.
	snap := Compute(2000, 50, testThresholds())
	if snap.SafeForAdmission {
		t.Error("expected exact threshold to be unsafe")
	}
}

func TestConservative(t *testing.T) {
	snap := Conservative()

	if snap.SafeForAdmission {
		t.Error("conservative snapshot must not admit")
	}
	if snap.MaxAdmittable != 0 {
		t.Errorf("conservative snapshot must admit 0 agents, got %d", snap.MaxAdmittable)
	}
}

func TestStubMonitor(t *testing.T) {
	stub := NewStub(4000, testThresholds())

	snap := stub.Snapshot()
	if !snap.SafeForAdmission {
		t.Error("expected safe admission from stub at 4000MB")
	}

	stub.SetAvailable(400)
	snap = stub.Snapshot()
	if snap.SafeForAdmission {
		t.Error("expected unsafe admission from stub at 400MB")
	}
	if snap.MaxAdmittable != 0 {
		t.Errorf("expected 0 admittable, got %d", snap.MaxAdmittable)
	}
}

func TestSystemSnapshotNeverPanics(t *testing.T) {
	// Live read; we only assert the contract shape, not the values.
	snap := NewSystem(testThresholds()).Snapshot()
	if snap.MaxAdmittable < 0 {
		t.Errorf("MaxAdmittable must be non-negative, got %d", snap.MaxAdmittable)
	}
}
