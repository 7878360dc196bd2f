package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/sandboxtest/events"
	"github.com/ethereum-optimism/sandboxtest/exitcodes"
	"github.com/ethereum-optimism/sandboxtest/flags"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect a structured test event stream (canonical or test2json)",
		Subcommands: []*cli.Command{
			{
				Name:      "summarize",
				Usage:     "Print a table of every test and its outcome",
				ArgsUsage: "[file|-]",
				Action:    summarizeEvents,
			},
			{
				Name:      "convert",
				Usage:     "Rewrite a stream as canonical records with captured output attached",
				ArgsUsage: "[file|-]",
				Action:    convertEvents,
			},
			{
				Name:      "extract",
				Usage:     "Print the captured output of the first result for a test",
				ArgsUsage: "[file|-]",
				Flags:     flags.ExtractFlags,
				Action:    extractEvents,
			},
		},
	}
}

// readEvents parses the file named by the first argument, or stdin for "-" or none
func readEvents(ctx *cli.Context) ([]events.Event, error) {
	var r io.Reader = ctx.App.Reader
	if name := ctx.Args().First(); name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("failed to open event stream: %w", err)
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		r = os.Stdin
	}
	return events.Scan(r)
}

func summarizeEvents(ctx *cli.Context) error {
	evs, err := readEvents(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(ctx.App.Writer)
	t.SetTitle("Test Events")
	t.AppendHeader(table.Row{"Test", "Result", "Output"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Output", WidthMax: 80, WidthMaxEnforcer: text.Trim},
	})

	var passed, failed, skipped int
	for _, ev := range evs {
		if ev.Kind != events.KindTest {
			continue
		}
		switch ev.Phase {
		case events.PhaseOK:
			passed++
		case events.PhaseFailed:
			failed++
		case events.PhaseIgnored:
			skipped++
		default:
			continue
		}
		t.AppendRow(table.Row{ev.Name, resultString(ev.Phase), firstLine(ev.CapturedOutput())})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped), ""})
	t.Render()
	return nil
}

func resultString(p events.Phase) string {
	switch p {
	case events.PhaseOK:
		return "PASS"
	case events.PhaseFailed:
		return "FAIL"
	case events.PhaseIgnored:
		return "SKIP"
	default:
		return strings.ToUpper(string(p))
	}
}

// firstLine returns the first non-blank line of output, without color codes
func firstLine(output string) string {
	for _, line := range strings.Split(stripansi.Strip(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func convertEvents(ctx *cli.Context) error {
	evs, err := readEvents(ctx)
	if err != nil {
		return err
	}
	enc := events.NewEncoder(ctx.App.Writer)
	for _, ev := range evs {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

func extractEvents(ctx *cli.Context) error {
	evs, err := readEvents(ctx)
	if err != nil {
		return err
	}
	name := ctx.String(flags.Name.Name)
	ev, ok := events.FindTerminal(evs, name)
	if !ok {
		return cli.Exit(fmt.Sprintf("no result for test %s", name), exitcodes.RuntimeErr)
	}
	_, err = io.WriteString(ctx.App.Writer, ev.CapturedOutput())
	return err
}
