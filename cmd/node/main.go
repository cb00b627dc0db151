package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yourusername/minichain/internal/blockchain"
	"github.com/yourusername/minichain/internal/config"
	"github.com/yourusername/minichain/internal/logger"
	"github.com/yourusername/minichain/internal/metrics"
	"github.com/yourusername/minichain/internal/storage"
)

// Version is overridden at build time with -ldflags "-X main.Version=..."
var Version = "dev"

var log, _ = logger.Get(logger.SubsystemTags.NODE)

// app carries the state shared by every subcommand of one invocation
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	var configFile string
	rootCmd := &cobra.Command{
		Use:   "minichain",
		Short: "A single-node proof-of-work ledger",
		Long: `minichain keeps a proof-of-work chain of UTXO transactions in a local
LevelDB store and serves it over gRPC.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(configFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.CloseLogRotator()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.* or $HOME/.minichain/config.*)")
	flags.String(config.KeyDataDir, a.v.GetString(config.KeyDataDir), "directory holding the chain database")
	flags.String(config.KeyLogDir, a.v.GetString(config.KeyLogDir), "directory for rotated log files, empty disables file logging")
	flags.StringP(config.KeyLogLevel, "l", a.v.GetString(config.KeyLogLevel), "log level (trace|debug|info|warn|error|critical|off)")
	flags.String(config.KeyMiner, "", "address receiving mining rewards, generated when empty")
	flags.Uint64(config.KeyMaxAttempts, 0, "maximum nonces tried per block, 0 for unbounded")
	for _, key := range []string{config.KeyDataDir, config.KeyLogDir, config.KeyLogLevel,
		config.KeyMiner, config.KeyMaxAttempts} {

		if err := a.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(
		a.createChainCmd(),
		a.balanceCmd(),
		a.sendCmd(),
		a.mineCmd(),
		a.printChainCmd(),
		a.newAddressCmd(),
		a.listAddressesCmd(),
		a.serveCmd(),
		a.infoCmd(),
		versionCmd(),
	)
	return rootCmd
}

// init loads the configuration and sets up logging
func (a *app) init(configFile string) error {
	if configFile != "" {
		a.v.SetConfigFile(configFile)
	}
	used, err := config.ReadConfigFile(a.v)
	if err != nil {
		return err
	}

	a.cfg, err = config.Load(a.v)
	if err != nil {
		return err
	}

	if logFile := a.cfg.LogFile(); logFile != "" {
		if err := logger.InitLogRotator(logFile); err != nil {
			return err
		}
	}
	if err := logger.SetLogLevels(a.cfg.LogLevel); err != nil {
		return err
	}
	if used {
		log.Debugf("Using config file %s", a.v.ConfigFileUsed())
	}
	return nil
}

// openStore opens the LevelDB store in the data directory
func (a *app) openStore() (*storage.Storage, error) {
	return storage.NewStorage(a.cfg.DataDir)
}

// openChain opens the existing chain in the data directory
func (a *app) openChain(m *metrics.Metrics) (*blockchain.Blockchain, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	bc, err := blockchain.Open(store, a.chainOptions(m))
	if err != nil {
		store.Close()
		if errors.Is(err, blockchain.ErrNoChain) {
			return nil, errors.Wrap(err, "run createchain first")
		}
		return nil, err
	}
	return bc, nil
}

func (a *app) chainOptions(m *metrics.Metrics) blockchain.Options {
	return blockchain.Options{
		MaxAttempts: a.cfg.MaxAttempts,
		Metrics:     m,
	}
}

// saveMinerKey stores a generated miner key so its rewards stay spendable
func (a *app) saveMinerKey(store *storage.Storage) error {
	if a.cfg.MinerKey == nil {
		return nil
	}
	if err := store.SaveKeyPair(a.cfg.MinerKey); err != nil {
		return err
	}
	log.Infof("Generated miner address %s", a.cfg.Miner)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of minichain",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "minichain", Version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.CloseLogRotator()
		os.Exit(1)
	}
}
