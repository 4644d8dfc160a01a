package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/atsora/pomamo-engine-sub026/internal/logger"
	"github.com/atsora/pomamo-engine-sub026/internal/replay"
)

var cli struct {
	Fixtures []string `arg:"" type:"existingfile" help:"Fixture JSON files"`
	Verbose  bool     `short:"v" help:"Print the answer of diverging steps"`
	Debug    bool     `help:"Enable debug logging"`
}

// #region main

func main() {
	kong.Parse(&cli,
		kong.Name("replay"),
		kong.Description("Replay reason-slot fixtures and compare the answers with the expectations."),
		kong.UsageOnError(),
	)
	if err := logger.Init(logger.Config{Debug: cli.Debug, Console: true}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}

	exitCode := 0
	for _, path := range cli.Fixtures {
		code := runFixture(path)
		if code > exitCode {
			exitCode = code
		}
	}
	os.Exit(exitCode)
}

// #endregion main

// #region output

func runFixture(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	results, err := replay.Replay(context.Background(), f, logger.WithComponent("replay"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay %s: %v\n", path, err)
		return 2
	}

	fmt.Printf("%s: %s\n", path, f.Description)
	return printComparison(results)
}

// printComparison outputs a comparison table and returns exit code.
func printComparison(results []replay.Result) int {
	fmt.Printf("%-28s| %-8s| %s\n", "Step", "Kind", "Match")
	fmt.Printf("%-28s+%-9s+%s\n", "----------------------------", "---------", "------")

	for _, r := range results {
		match := "OK"
		if !r.Match {
			match = "DIFF " + r.Diff
		}
		fmt.Printf("%-28s| %-8s| %s\n", r.StepID, r.Kind, match)
		if !r.Match && cli.Verbose {
			fmt.Printf("%28s  got: %v\n", "", r.Got)
		}
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n\n", s.TotalSteps, s.Matches, s.Diverged)
	if s.Diverged > 0 {
		return 1
	}
	return 0
}

// #endregion output
