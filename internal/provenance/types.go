package provenance

import "time"

// #region entry
// Entry is a single row in the resolution_log table: one answer of the
// current-state resolver.
type Entry struct {
	ID             string
	Machine        int
	Period         string // "None" | "Reason|Running" ...
	NotRunningOnly bool
	Origin         string
	ModeOrigin     string
	Reason         int
	MachineMode    int
	DateTime       time.Time
	PeriodStart    time.Time // zero when unset
	StateJSON      string
	ResolvedAt     time.Time
}
// #endregion entry
