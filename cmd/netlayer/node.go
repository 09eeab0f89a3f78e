package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/node"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

func newNodeCommand() *cobra.Command {
	var peers []string

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run one host",
		Long: `Run one host of the overlay.

Lines read from stdin are sent as "<destination> <text>". Payloads addressed
to this host are printed.`,
		Example: `  netlayer node --address 1 --listen :8080
  netlayer node --address 2 --listen :8081 --peer 1=ws://127.0.0.1:8080/link
  netlayer node --config node.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			v.SetDefault(config.NodeSection+".listen", config.DefaultListen)
			v.SetDefault(config.NodeSection+".stats_interval", config.DefaultStatsInterval)
			if err := bindFlags(v, cmd, config.NodeSection, map[string]string{
				"address":        "address",
				"listen":         "listen",
				"max-payload":    "max_payload",
				"stats-interval": "stats_interval",
			}); err != nil {
				return err
			}

			printBanner()
			if !v.IsSet(config.NodeSection + ".address") {
				v.Set(config.NodeSection+".address", askAddress())
			}

			cfg, err := config.LoadNode(v)
			if err != nil {
				return err
			}
			for _, raw := range peers {
				p, err := config.ParsePeer(raw)
				if err != nil {
					return err
				}
				cfg.Peers = append(cfg.Peers, p)
			}

			return runNode(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("config", "", "TOML config file")
	cmd.Flags().Int32("address", 0, "Address of this host")
	cmd.Flags().String("listen", config.DefaultListen, "HTTP listen address; empty disables it")
	cmd.Flags().Int("max-payload", config.DefaultMaxPayload, "Largest accepted payload in bytes")
	cmd.Flags().Duration("stats-interval", config.DefaultStatsInterval, "Traffic report interval; 0 disables it")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "Peer to dial as <address>=<url>; repeatable")
	return cmd
}

func runNode(ctx context.Context, cfg config.Node) error {
	n, err := node.New(cfg, printingClient{})
	if err != nil {
		return err
	}

	util.LogSuccess("host %s starting with %d configured peers", cfg.Address, len(cfg.Peers))
	go readCommands(ctx, n)

	if err := n.Run(ctx); err != nil {
		return err
	}
	util.LogInfo("host %s stopped", cfg.Address)
	return nil
}

// printingClient prints every payload delivered to this host.
type printingClient struct{}

func (printingClient) Receive(payload []byte) {
	pterm.Success.Printfln("received %d bytes: %q", len(payload), payload)
}

// readCommands sends each "<destination> <text>" line of stdin.
func readCommands(ctx context.Context, n *node.Node) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		dest, text, err := parseCommand(line)
		if err != nil {
			util.LogWarning("%v", err)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = n.Send(sendCtx, dest, []byte(text))
		cancel()
		if err != nil {
			util.LogWarning("send to %s: %v", dest, err)
		}
	}
}

// parseCommand splits "<destination> <text>".
func parseCommand(line string) (protocol.Address, string, error) {
	raw, text, _ := strings.Cut(line, " ")
	dest, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("expected \"<destination> <text>\", got %q", line)
	}
	return protocol.Address(dest), text, nil
}

// askAddress prompts the user for a host address until a valid one is entered.
func askAddress() int32 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Address of this host").
			Show()

		addr, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		if err == nil {
			pterm.Println()
			return int32(addr)
		}

		util.LogWarning("invalid address: must be a 32-bit integer")
		pterm.Println()
	}
}
