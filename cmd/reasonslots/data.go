package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/atsora/pomamo-engine-sub026/internal/logger"
	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/replay"
	"github.com/atsora/pomamo-engine-sub026/internal/store"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region import

// ImportCmd implements the 'import' command.
type ImportCmd struct {
	File string `arg:"" type:"existingfile" help:"JSON dataset, as written by export"`
}

func (c *ImportCmd) Run(root *CLI) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read dataset %s: %w", c.File, err)
	}
	var in replay.FixtureDataset
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("parse dataset %s: %w", c.File, err)
	}
	ds, err := in.ToDataset(timerange.CutoffDays{Location: root.cfg.Location(), Cutoff: root.cfg.DayCutoff()})
	if err != nil {
		return err
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, root)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()
	if err := backend.Load(ctx, ds); err != nil {
		return err
	}
	logger.Info().
		Int("slots", len(ds.Slots)).
		Int("statuses", len(ds.Statuses)).
		Int("pointers", len(ds.Pointers)).
		Int("facts", len(ds.Facts)).
		Int("observations", len(ds.Observations)).
		Msg("dataset imported")
	return nil
}

// #endregion import

// #region export

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	Machine int    `help:"Only export this machine"`
	Out     string `short:"o" help:"Output file, stdout when empty"`
}

func (c *ExportCmd) Run(root *CLI) error {
	ctx := context.Background()
	backend, err := openBackend(ctx, root)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	machines := []model.MachineID{model.MachineID(c.Machine)}
	if c.Machine == 0 {
		if machines, err = backend.Machines(ctx); err != nil {
			return err
		}
	}
	var all store.Dataset
	for _, m := range machines {
		ds, err := backend.Dataset(ctx, m)
		if err != nil {
			return fmt.Errorf("export machine %d: %w", m, err)
		}
		all.Slots = append(all.Slots, ds.Slots...)
		all.Statuses = append(all.Statuses, ds.Statuses...)
		all.Pointers = append(all.Pointers, ds.Pointers...)
		all.Facts = append(all.Facts, ds.Facts...)
		all.Observations = append(all.Observations, ds.Observations...)
	}

	data, err := json.MarshalIndent(replay.DatasetOf(all), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if c.Out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	logger.Info().Str("out", c.Out).Int("machines", len(machines)).Msg("dataset exported")
	return nil
}

// #endregion export
