package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atsora/pomamo-engine-sub026/internal/provenance"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Machine int  `arg:"" help:"Machine id"`
	Last    int  `default:"20" help:"Show the N most recent resolutions"`
	JSON    bool `name:"json" help:"Output as JSON instead of a table"`
}

func (c *HistoryCmd) Run(root *CLI) error {
	ctx := context.Background()
	e, err := open(ctx, root, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	if e.provenance == nil {
		return errors.New("the resolution log needs the sqlite store")
	}

	entries, err := e.provenance.Recent(ctx, c.Machine, c.Last)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(entries)
	}
	printHistory(entries)
	return nil
}

func printHistory(entries []provenance.Entry) {
	fmt.Printf("%-30s| %-14s| %-14s| %-7s| %-6s| %s\n", "Resolved at", "Origin", "Mode origin", "Reason", "Mode", "Period start")
	fmt.Printf("%-30s+%-15s+%-15s+%-8s+%-7s+%s\n",
		"------------------------------", "---------------", "---------------", "--------", "-------", "------------")
	for _, e := range entries {
		start := "-"
		if !e.PeriodStart.IsZero() {
			start = e.PeriodStart.Format(time.RFC3339)
		}
		fmt.Printf("%-30s| %-14s| %-14s| %-7d| %-6d| %s\n",
			e.ResolvedAt.Format(time.RFC3339Nano), e.Origin, e.ModeOrigin, e.Reason, e.MachineMode, start)
	}
	fmt.Printf("\n%d resolutions\n", len(entries))
}
