package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/sim"
	"github.com/1ureka/netlayer/internal/util"
)

func newSimCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Simulate many hosts in memory",
		Example: `  netlayer sim --topology random --hosts 32 --edge-probability 0.1
  netlayer sim --config sim.toml --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd, config.SimSection, map[string]string{
				"hosts":            "hosts",
				"topology":         "topology",
				"edge-probability": "edge_probability",
				"messages":         "messages",
				"payload-size":     "payload_size",
				"max-chunk":        "max_chunk",
				"max-events":       "max_events",
				"seed":             "seed",
			}); err != nil {
				return err
			}

			cfg, err := config.LoadSim(v)
			if err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("simulating %d hosts on a %s", cfg.Hosts, cfg.Topology))
			report, err := sim.Run(cfg)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success(report.String())

			if report.Truncated {
				util.LogWarning("event budget of %d exhausted; %d messages still in flight", cfg.MaxEvents, report.InFlight)
			}
			return printReport(report)
		},
	}

	// Zero values fall back to the config defaults.
	cmd.Flags().String("config", "", "TOML config file")
	cmd.Flags().Int("hosts", 0, "Number of hosts")
	cmd.Flags().String("topology", "", "line, ring, star, full or random")
	cmd.Flags().Float64("edge-probability", 0, "Edge probability of the random topology")
	cmd.Flags().Int("messages", 0, "Messages to send")
	cmd.Flags().Int("payload-size", 0, "Payload bytes per message")
	cmd.Flags().Int("max-chunk", 0, "Largest chunk a link delivers at once")
	cmd.Flags().Int("max-events", 0, "Event budget")
	cmd.Flags().Uint64("seed", 0, "Random seed")
	return cmd
}

func printReport(r sim.Report) error {
	itoa := strconv.Itoa
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Metric", "Value"},
		{"Topology", r.Topology},
		{"Hosts", itoa(r.Hosts)},
		{"Links", itoa(r.Links)},
		{"Sent", itoa(r.Sent)},
		{"Delivered", itoa(r.Delivered)},
		{"Misdelivered", itoa(r.Misdelivered)},
		{"Dropped", itoa(r.Dropped)},
		{"In flight", itoa(r.InFlight)},
		{"Transmissions", itoa(r.Transmissions)},
		{"Transmissions / delivery", strconv.FormatFloat(r.MeanTransmissions(), 'f', 2, 64)},
		{"Chunks", itoa(r.Chunks)},
		{"Events", itoa(r.Events)},
		{"Simulated ticks", strconv.FormatUint(uint64(r.Duration), 10)},
	}).Render()
}
