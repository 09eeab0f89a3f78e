// Netlayer runs hosts of a small overlay network. Hosts exchange framed
// packets over WebSocket or WebRTC links and forward anything not addressed
// to them to a randomly chosen neighbour.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		debug    bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "netlayer",
		Short:         "Random-walk overlay network hosts and simulator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				util.EnableDebug()
				return nil
			}
			return util.SetLogLevel(logLevel)
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")

	cmd.AddCommand(
		newNodeCommand(),
		newSimCommand(),
		newSampleCommand(),
		newDecodeCommand(),
	)
	return cmd
}

// newViper returns a viper store loaded from the --config file of cmd.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	path, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(v, path); err != nil {
		return nil, err
	}
	return v, nil
}

// bindFlags binds each flag to the key of the same name in section.
func bindFlags(v *viper.Viper, cmd *cobra.Command, section string, keys map[string]string) error {
	for flag, key := range keys {
		if err := v.BindPFlag(section+"."+key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func printBanner() {
	pterm.Info.Printfln("Netlayer v%s", version)
	pterm.Println()
}
