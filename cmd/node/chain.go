package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/blockchain"
	"github.com/yourusername/minichain/internal/config"
	"github.com/yourusername/minichain/internal/grpc"
	"github.com/yourusername/minichain/pkg/types"
)

const rpcTimeout = 30 * time.Second

// interruptContext returns a context cancelled on SIGINT or SIGTERM
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) createChainCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "createchain",
		Short: "Create a chain whose genesis block pays address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			bc, err := blockchain.Create(store, address, a.chainOptions(nil))
			if err != nil {
				store.Close()
				return err
			}
			defer bc.Close()

			tip := bc.Tip()
			fmt.Fprintf(cmd.OutOrStdout(), "Created chain with genesis block %s paying '%s'\n", tip.Hash(), address)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address receiving the genesis reward")
	cmd.MarkFlagRequired("address")
	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	var address, rpc string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the confirmed balance of an address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var balance int64
			if rpc != "" {
				ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
				defer cancel()
				client, err := grpc.Dial(ctx, rpc)
				if err != nil {
					return err
				}
				defer client.Close()
				if balance, err = client.Balance(ctx, address); err != nil {
					return err
				}
			} else {
				bc, err := a.openChain(nil)
				if err != nil {
					return err
				}
				defer bc.Close()
				balance = bc.Balance(address)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Balance of '%s': %d\n", address, balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address to query")
	cmd.Flags().StringVar(&rpc, "rpc", "", "query the node serving at this address instead of the local store")
	cmd.MarkFlagRequired("address")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var (
		from, to, rpc string
		amount        int64
		mine          bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Transfer value between addresses",
		Long: `Transfer value between addresses. Without --rpc the transfer is mined
into a block right away, since pending transfers live only in the memory of a
running node. With --rpc the transfer is queued on that node and mined when
--mine is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if rpc != "" {
				return a.sendRemote(out, rpc, from, to, amount, mine)
			}
			if !mine {
				return errors.New("a local send must be mined, use --rpc to queue it on a running node")
			}

			bc, err := a.openChain(nil)
			if err != nil {
				return err
			}
			defer bc.Close()

			spend, err := bc.Send(from, to, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Transaction %s\n", spend.ID)

			b, err := a.mineLocal(bc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Mined block #%d %s\n", b.Height(), b.Hash())
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sending address")
	cmd.Flags().StringVar(&to, "to", "", "receiving address")
	cmd.Flags().Int64Var(&amount, "amount", 0, "value to transfer")
	cmd.Flags().BoolVar(&mine, "mine", true, "mine a block holding the transfer")
	cmd.Flags().StringVar(&rpc, "rpc", "", "queue the transfer on the node serving at this address")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) sendRemote(out io.Writer, rpc, from, to string, amount int64, mine bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	client, err := grpc.Dial(ctx, rpc)
	if err != nil {
		return err
	}
	defer client.Close()

	view, err := client.Send(ctx, from, to, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Transaction %s queued\n", view.ID)

	if !mine {
		return nil
	}
	summary, err := client.Mine(ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Mined block #%d %s\n", summary.Height, summary.Hash)
	return nil
}

// mineLocal mines one block paying the configured miner, stopping on
// interrupt
func (a *app) mineLocal(bc *blockchain.Blockchain) (*block.Block, error) {
	ctx, stop := interruptContext()
	defer stop()

	if err := a.saveMinerKey(bc.Store()); err != nil {
		return nil, err
	}
	return bc.MineBlock(ctx, a.cfg.Miner)
}

func (a *app) mineCmd() *cobra.Command {
	var rpc string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine one block paying the configured miner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if rpc != "" {
				ctx, stop := interruptContext()
				defer stop()
				client, err := grpc.Dial(ctx, rpc)
				if err != nil {
					return err
				}
				defer client.Close()

				summary, err := client.Mine(ctx, a.v.GetString(config.KeyMiner))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Mined block #%d %s\n", summary.Height, summary.Hash)
				return nil
			}

			bc, err := a.openChain(nil)
			if err != nil {
				return err
			}
			defer bc.Close()

			b, err := a.mineLocal(bc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Mined block #%d %s paying '%s'\n", b.Height(), b.Hash(), a.cfg.Miner)
			return nil
		},
	}
	cmd.Flags().StringVar(&rpc, "rpc", "", "ask the node serving at this address to mine")
	return cmd
}

func (a *app) printChainCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "printchain",
		Short: "Print every block from tip to genesis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := a.openChain(nil)
			if err != nil {
				return err
			}
			defer bc.Close()

			out := cmd.OutOrStdout()
			it := bc.Iterator()
			for it.Next() {
				summary, err := types.NewBlockSummary(it.Block())
				if err != nil {
					return err
				}
				if verbose {
					spew.Fdump(out, summary)
					continue
				}
				printBlock(out, summary)
			}
			return it.Err()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "dump every field of every block")
	return cmd
}

func printBlock(out io.Writer, s *types.BlockSummary) {
	fmt.Fprintf(out, "============ Block #%d ============\n", s.Height)
	fmt.Fprintf(out, "Hash:        %s\n", s.Hash)
	fmt.Fprintf(out, "Prev. hash:  %s\n", s.PrevHash)
	fmt.Fprintf(out, "Merkle root: %s\n", s.MerkleRoot)
	fmt.Fprintf(out, "Time:        %s\n", s.Time().UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Nonce:       %d\n", s.Nonce)
	for _, t := range s.Transactions {
		fmt.Fprintf(out, "  Transaction %s\n", t.ID)
		for _, in := range t.Inputs {
			if t.Coinbase {
				fmt.Fprintf(out, "    coinbase: %s\n", in.Authorization)
				continue
			}
			fmt.Fprintf(out, "    in:  %s:%d by '%s'\n", in.Txid, in.Vout, in.Authorization)
		}
		for _, o := range t.Outputs {
			fmt.Fprintf(out, "    out: %d to '%s'\n", o.Value, o.Owner)
		}
	}
	fmt.Fprintln(out, strings.Repeat("=", 36))
}
