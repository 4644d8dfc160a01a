package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/orchestrator"
	"github.com/atsora/pomamo-engine-sub026/internal/replay"
	"github.com/atsora/pomamo-engine-sub026/internal/resolver"
	"github.com/atsora/pomamo-engine-sub026/internal/rpc"
	"github.com/atsora/pomamo-engine-sub026/internal/slots"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// queryTimeout bounds one command-line query.
const queryTimeout = 30 * time.Second

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #region flags

// ExtendFlags controls the extension of the boundary slots.
type ExtendFlags struct {
	Extend     bool   `help:"Extend the boundary slots past the window"`
	LimitLower string `help:"Do not extend before this instant (RFC 3339)"`
	LimitUpper string `help:"Do not extend after this instant (RFC 3339)"`
}

func (f ExtendFlags) options() (slots.ExtendOptions, error) {
	limit, err := window(f.LimitLower, f.LimitUpper)
	if err != nil {
		return slots.ExtendOptions{}, err
	}
	return slots.ExtendOptions{Extend: f.Extend, Limit: limit}, nil
}

func window(lower, upper string) (timerange.Range, error) {
	l, err := replay.ParseTime(lower)
	if err != nil {
		return timerange.Range{}, err
	}
	u, err := replay.ParseTime(upper)
	if err != nil {
		return timerange.Range{}, err
	}
	return timerange.Range{Lower: l, Upper: u}, nil
}

// #endregion flags

// #region range

// RangeCmd implements the 'range' command.
type RangeCmd struct {
	Machine int         `arg:"" help:"Machine id"`
	Variant string      `short:"V" default:"reason-only" enum:"color,reason-only,selection,overwrite-required,manual-or-overwrite" help:"View variant"`
	Lower   string      `help:"Window start (RFC 3339), unbounded when empty"`
	Upper   string      `help:"Window end (RFC 3339), unbounded when empty"`
	Ext     ExtendFlags `embed:""`
	Remote  string      `help:"Address of a reasonslots gRPC server to query instead of the store"`
}

func (c *RangeCmd) Run(root *CLI) error {
	r, err := window(c.Lower, c.Upper)
	if err != nil {
		return err
	}
	ext, err := c.Ext.options()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if c.Remote != "" {
		client, err := rpc.NewClient(c.Remote)
		if err != nil {
			return err
		}
		defer client.Close()
		out, err := client.Range(ctx, rpc.RangeRequest{
			Variant: c.Variant, Machine: model.MachineID(c.Machine), Range: r, Extend: ext.Extend, Limit: ext.Limit,
		})
		if err != nil {
			return err
		}
		return printJSON(out)
	}

	e, err := open(ctx, root, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	ans, err := e.orch.Range(ctx, orchestrator.RangeQuery{
		Variant: orchestrator.VariantID(c.Variant),
		Machine: model.MachineID(c.Machine),
		Range:   r,
		Extend:  ext,
	})
	if err != nil {
		return err
	}
	return printJSON(ans)
}

// #endregion range

// #region at

// AtCmd implements the 'at' command.
type AtCmd struct {
	Machine int         `arg:"" help:"Machine id"`
	At      string      `arg:"" help:"Instant (RFC 3339)"`
	Variant string      `short:"V" default:"reason-only" enum:"color,reason-only,selection,overwrite-required,manual-or-overwrite" help:"View variant"`
	Ext     ExtendFlags `embed:""`
	Remote  string      `help:"Address of a reasonslots gRPC server to query instead of the store"`
}

func (c *AtCmd) Run(root *CLI) error {
	at, err := replay.ParseTime(c.At)
	if err != nil {
		return err
	}
	if at.IsZero() {
		return fmt.Errorf("missing instant")
	}
	ext, err := c.Ext.options()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if c.Remote != "" {
		client, err := rpc.NewClient(c.Remote)
		if err != nil {
			return err
		}
		defer client.Close()
		out, err := client.At(ctx, c.Variant, model.MachineID(c.Machine), at, ext.Extend)
		if err != nil {
			return err
		}
		return printJSON(out)
	}

	e, err := open(ctx, root, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	ans, err := e.orch.At(ctx, orchestrator.PointQuery{
		Variant: orchestrator.VariantID(c.Variant),
		Machine: model.MachineID(c.Machine),
		At:      at,
		Extend:  ext,
	})
	if err != nil {
		return err
	}
	return printJSON(ans)
}

// #endregion at

// #region current

// CurrentCmd implements the 'current' command.
type CurrentCmd struct {
	Machine        int    `arg:"" help:"Machine id"`
	Period         string `default:"None" help:"Period flags: None, Reason, MachineModeCategory, Running (combine with |)"`
	NotRunningOnly bool   `help:"Only compute a period start when the machine is not running"`
	Remote         string `help:"Address of a reasonslots gRPC server to query instead of the store"`
}

func (c *CurrentCmd) Run(root *CLI) error {
	period, ok := resolver.ParsePeriodFlags(c.Period)
	if !ok {
		return fmt.Errorf("unknown period %q", c.Period)
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if c.Remote != "" {
		client, err := rpc.NewClient(c.Remote)
		if err != nil {
			return err
		}
		defer client.Close()
		out, err := client.Current(ctx, model.MachineID(c.Machine), period.String(), c.NotRunningOnly)
		if err != nil {
			return err
		}
		return printJSON(out)
	}

	e, err := open(ctx, root, false, true)
	if err != nil {
		return err
	}
	defer e.Close()
	s, err := e.orch.Current(ctx, model.MachineID(c.Machine), period, c.NotRunningOnly)
	if err != nil {
		return err
	}
	return printJSON(orchestrator.StateRecord(s))
}

// #endregion current
