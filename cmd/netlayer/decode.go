package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
)

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "decode <hex>",
		Short:   "Decode a hex dump of one or more packets",
		Example: `  netlayer decode 0000000200000007000000204142`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.Join(strings.Fields(args[0]), ""))
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			return decodeStream(cmd.OutOrStdout(), data)
		},
	}
}

// decodeStream prints every complete packet in data, then any leftover.
func decodeStream(w io.Writer, data []byte) error {
	buf := bytes.NewBuffer(data)

	var extractor network.Extractor
	for {
		packet, ok, err := extractor.Extract(buf)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Fprintln(w, protocol.Describe(packet))
	}

	if buf.Len() > 0 {
		fmt.Fprintf(w, "%d trailing bytes of an incomplete packet\n", buf.Len())
	}
	return nil
}
