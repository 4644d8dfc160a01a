package rpc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/orchestrator"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// Request fields. Instants are RFC 3339 strings; a missing bound is
// unbounded.
const (
	fieldMachine    = "machine"
	fieldVariant    = "variant"
	fieldLower      = "lower"
	fieldUpper      = "upper"
	fieldAt         = "at"
	fieldExtend     = "extend"
	fieldLimitLower = "limit_lower"
	fieldLimitUpper = "limit_upper"
)

func machineOf(req *structpb.Struct) (model.MachineID, error) {
	v, ok := req.GetFields()[fieldMachine]
	if !ok {
		return 0, fmt.Errorf("%w: missing machine", errBadRequest)
	}
	n := v.GetNumberValue()
	if n <= 0 || n != float64(int64(n)) {
		return 0, fmt.Errorf("%w: machine %v", errBadRequest, v.AsInterface())
	}
	return model.MachineID(n), nil
}

func timeOf(req *structpb.Struct, field string) (time.Time, error) {
	raw := req.GetFields()[field].GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return t.UTC(), nil
}

func rangeOf(req *structpb.Struct, lowerField, upperField string) (timerange.Range, error) {
	lower, err := timeOf(req, lowerField)
	if err != nil {
		return timerange.Range{}, err
	}
	upper, err := timeOf(req, upperField)
	if err != nil {
		return timerange.Range{}, err
	}
	return timerange.Range{Lower: lower, Upper: upper}, nil
}

func extendOf(req *structpb.Struct) (slots.ExtendOptions, error) {
	limit, err := rangeOf(req, fieldLimitLower, fieldLimitUpper)
	if err != nil {
		return slots.ExtendOptions{}, err
	}
	return slots.ExtendOptions{Extend: req.GetFields()[fieldExtend].GetBoolValue(), Limit: limit}, nil
}

func decodeRange(req *structpb.Struct) (orchestrator.RangeQuery, error) {
	machine, err := machineOf(req)
	if err != nil {
		return orchestrator.RangeQuery{}, err
	}
	r, err := rangeOf(req, fieldLower, fieldUpper)
	if err != nil {
		return orchestrator.RangeQuery{}, err
	}
	if r.IsEmpty() {
		return orchestrator.RangeQuery{}, fmt.Errorf("%w: empty range %s", errBadRequest, r)
	}
	ext, err := extendOf(req)
	if err != nil {
		return orchestrator.RangeQuery{}, err
	}
	return orchestrator.RangeQuery{
		Variant: orchestrator.VariantID(req.GetFields()[fieldVariant].GetStringValue()),
		Machine: machine,
		Range:   r,
		Extend:  ext,
	}, nil
}

func decodePoint(req *structpb.Struct) (orchestrator.PointQuery, error) {
	machine, err := machineOf(req)
	if err != nil {
		return orchestrator.PointQuery{}, err
	}
	at, err := timeOf(req, fieldAt)
	if err != nil {
		return orchestrator.PointQuery{}, err
	}
	if at.IsZero() {
		return orchestrator.PointQuery{}, fmt.Errorf("%w: missing at", errBadRequest)
	}
	ext, err := extendOf(req)
	if err != nil {
		return orchestrator.PointQuery{}, err
	}
	return orchestrator.PointQuery{
		Variant: orchestrator.VariantID(req.GetFields()[fieldVariant].GetStringValue()),
		Machine: machine,
		At:      at,
		Extend:  ext,
	}, nil
}
