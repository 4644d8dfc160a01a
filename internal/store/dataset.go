package store

import (
	"context"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
)

// Dataset is every record of a timeline, as imported or exported.
type Dataset struct {
	Slots        []model.ReasonSlot
	Statuses     []model.MachineStatus
	Pointers     []model.CurrentMachineMode
	Facts        []model.Fact
	Observations []model.ObservationStateSlot
}

// Backend is what the command line needs from a store.
type Backend interface {
	resolver.Reader
	resolver.Snapshotter
	Load(ctx context.Context, ds Dataset) error
	Dataset(ctx context.Context, machine model.MachineID) (Dataset, error)
	Machines(ctx context.Context) ([]model.MachineID, error)
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*Memory)(nil)
)
