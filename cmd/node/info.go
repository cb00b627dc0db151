package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yourusername/minichain/internal/grpc"
	"github.com/yourusername/minichain/pkg/types"
)

func (a *app) infoCmd() *cobra.Command {
	var rpc string
	var height int64
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Query a running node",
		Long: `Query a running node for its chain state, or for one block with --height.
The node address defaults to the configured rpclisten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rpc == "" {
				rpc = a.cfg.RPCListen
			}

			ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
			defer cancel()
			client, err := grpc.Dial(ctx, rpc)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			if height >= 0 {
				summary, err := client.BlockAtHeight(ctx, uint64(height))
				if err != nil {
					return err
				}
				printBlock(out, summary)
				return nil
			}

			info, err := client.ChainInfo(ctx)
			if err != nil {
				return err
			}
			printInfo(out, rpc, info)
			return nil
		},
	}
	cmd.Flags().StringVar(&rpc, "rpc", "", "address of the node")
	cmd.Flags().Int64Var(&height, "height", -1, "print the block at this height")
	return cmd
}

func printInfo(out io.Writer, rpc string, info *types.ChainInfo) {
	fmt.Fprintf(out, "Node:         %s\n", rpc)
	fmt.Fprintf(out, "Height:       %d\n", info.Height)
	fmt.Fprintf(out, "Tip:          %s\n", info.TipHash)
	fmt.Fprintf(out, "Difficulty:   %d\n", info.Difficulty)
	fmt.Fprintf(out, "Mempool:      %d\n", info.MempoolSize)
	fmt.Fprintf(out, "UTXOs:        %d\n", info.UTXOCount)
	fmt.Fprintf(out, "Mining:       %t\n", info.Mining)
	fmt.Fprintf(out, "Blocks mined: %d\n", info.BlocksMined)
}
