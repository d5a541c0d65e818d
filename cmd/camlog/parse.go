package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/camlog/camlog/pkg/combatlog"
)

var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <log-file>",
	Short: "Parse a combat log file and print the events",
	Long: `Parse a combat log file once, front to back, printing every
recognized combat event. Useful for inspecting old logs without starting
the server.`,
	Example: `  # Human-readable output
  camlog parse chat.log

  # One JSON object per event
  camlog parse chat.log --json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "emit one JSON object per event")
}

func runParse(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	parser := combatlog.NewParser()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ev, ok := parser.ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if parseJSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		printEvent(out, ev)
	}
	return scanner.Err()
}

func printEvent(out *bufio.Writer, ev combatlog.Event) {
	clock := ev.Time.Format("15:04:05")
	switch ev.Type {
	case combatlog.EventDamage:
		fmt.Fprintf(out, "[%s] %s -> %s: %d %s damage\n",
			clock, ev.Source, ev.Target, ev.Amount, ev.DamageType)
	case combatlog.EventHeal:
		fmt.Fprintf(out, "[%s] %s -> %s: %d healed\n",
			clock, ev.Source, ev.Target, ev.Amount)
	case combatlog.EventDeath:
		fmt.Fprintf(out, "[%s] %s dies\n", clock, ev.Source)
	}
}
