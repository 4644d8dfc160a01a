package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/atsora/pomamo-engine-sub026/internal/config"
	"github.com/atsora/pomamo-engine-sub026/internal/logger"
)

// #region cli

// CLI definition & global flags.
type CLI struct {
	Config string `short:"c" help:"Configuration file path" type:"path"`
	Rules  string `help:"Default-reason rule table (YAML)" type:"path"`
	Debug  bool   `short:"v" help:"Enable debug logging"`

	Range   RangeCmd   `cmd:"" help:"Print the merged view of a machine over a window"`
	At      AtCmd      `cmd:"" help:"Print the view slot covering an instant"`
	Current CurrentCmd `cmd:"" help:"Resolve the current state of a machine"`
	History HistoryCmd `cmd:"" help:"List the logged resolutions of a machine (sqlite only)"`
	Watch   WatchCmd   `cmd:"" help:"Resolve every machine periodically and publish the states"`
	Serve   ServeCmd   `cmd:"" help:"Serve the views and the current state over gRPC"`
	Import  ImportCmd  `cmd:"" help:"Load a JSON dataset into the store"`
	Export  ExportCmd  `cmd:"" help:"Write the store content as a JSON dataset"`

	cfg *config.Config
}

// AfterApply loads the configuration and sets up logging once.
func (c *CLI) AfterApply() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Debug {
		cfg.Log.Debug = true
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// #endregion cli

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("reasonslots"),
		kong.Description("Machine reason-slot views and current-state resolution."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		logger.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}
