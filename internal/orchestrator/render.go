package orchestrator

import (
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/projection"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
)

// TimeLayout is the format of every instant in a Record. Unbounded sides
// are left out.
const TimeLayout = time.RFC3339Nano

const dayLayout = "2006-01-02"

func render[R any](s slots.Slot[R], ref func(R) Record) Record {
	out := ref(s.Ref)
	out["machine"] = int(s.Machine)
	putTime(out, "lower", s.Range.Lower)
	putTime(out, "upper", s.Range.Upper)
	if !s.DayRange.Lower.IsZero() {
		out["day_lower"] = s.DayRange.Lower.Format(dayLayout)
	}
	if !s.DayRange.Upper.IsZero() {
		out["day_upper"] = s.DayRange.Upper.Format(dayLayout)
	}
	if s.ModeSlots != nil {
		modes := make([]any, len(s.ModeSlots))
		for i, m := range s.ModeSlots {
			r := Record{"mode": int(m.Value.ID), "category": int(m.Value.Category), "running": int(m.Value.Running)}
			putTime(r, "lower", m.Range.Lower)
			putTime(r, "upper", m.Range.Upper)
			modes[i] = map[string]any(r)
		}
		out["modes"] = modes
	}
	if s.ObservationSlots != nil {
		states := make([]any, len(s.ObservationSlots))
		for i, o := range s.ObservationSlots {
			r := Record{"state": int(o.Value)}
			putTime(r, "lower", o.Range.Lower)
			putTime(r, "upper", o.Range.Upper)
			states[i] = map[string]any(r)
		}
		out["observations"] = states
	}
	return out
}

func putTime(r Record, key string, t time.Time) {
	if !t.IsZero() {
		r[key] = t.UTC().Format(TimeLayout)
	}
}

// #region refs

func colorRecord(r projection.ColorRef) Record {
	return Record{
		"processing":         r.Processing,
		"color":              r.Color,
		"overwrite_required": r.OverwriteRequired,
		"auto":               r.Auto,
		"running":            r.Running,
		"not_running":        r.NotRunning,
	}
}

func reasonOnlyRecord(r projection.ReasonOnlyRef) Record {
	return Record{
		"reason":             int(r.Reason),
		"json_data":          r.JSONData,
		"running":            r.Running,
		"score":              r.Score,
		"source":             r.Source.String(),
		"auto_reason_count":  r.AutoReasonCount,
		"overwrite_required": r.OverwriteRequired,
		"details":            r.Details,
		"default_reason":     r.DefaultReason,
	}
}

func selectionRecord(r projection.SelectionRef) Record {
	selectable := make([]any, len(r.Selectable))
	for i, id := range r.Selectable {
		selectable[i] = int(id)
	}
	return Record{
		"reason":             int(r.Reason),
		"running":            r.Running,
		"overwrite_required": r.OverwriteRequired,
		"details":            r.Details,
		"default_reason":     r.DefaultReason,
		"selectable":         selectable,
	}
}

func overwriteRequiredRecord(r projection.OverwriteRequiredRef) Record {
	return Record{"reason": int(r.Reason), "details": r.Details, "running": r.Running}
}

func manualOrOverwriteRecord(r projection.ManualOrOverwriteRef) Record {
	return Record{
		"reason":             int(r.Reason),
		"manual":             r.Manual,
		"overwrite_required": r.OverwriteRequired,
		"details":            r.Details,
	}
}

// #endregion

// StateRecord flattens a resolved state. Optional values are left out when
// unset.
func StateRecord(s resolver.State) Record {
	out := Record{
		"origin":      s.Origin.String(),
		"mode_origin": s.ModeOrigin.String(),
		"resolved":    s.Resolved(),
	}
	putTime(out, "current_date_time", s.CurrentDateTime)
	if !s.Resolved() {
		return out
	}
	out["reason"] = int(s.Reason)
	out["mode"] = int(s.MachineMode.ID)
	out["mode_category"] = int(s.MachineMode.Category)
	out["running"] = s.MachineMode.Running == model.RunningOn
	putTime(out, "date_time", s.DateTime)
	if s.ReasonScore != nil {
		out["score"] = *s.ReasonScore
	}
	if s.ReasonSource != nil {
		out["source"] = s.ReasonSource.String()
	}
	if s.AutoReasonCount != nil {
		out["auto_reason_count"] = *s.AutoReasonCount
	}
	if s.PeriodStart != nil {
		putTime(out, "period_start", *s.PeriodStart)
	}
	return out
}
