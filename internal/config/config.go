// Package config loads node settings from flags, environment variables
// and an optional config file through viper.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/yourusername/minichain/internal/crypto"
	"github.com/yourusername/minichain/internal/logger"
)

// Keys understood by Load
const (
	KeyDataDir       = "datadir"
	KeyLogDir        = "logdir"
	KeyLogLevel      = "loglevel"
	KeyMiner         = "miner"
	KeyRPCListen     = "rpclisten"
	KeyMetricsListen = "metricslisten"
	KeyMaxAttempts   = "maxattempts"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. MINICHAIN_DATADIR
	EnvPrefix = "minichain"

	defaultLogLevel   = "info"
	defaultRPCListen  = "127.0.0.1:50051"
	logFilename       = "minichain.log"
	defaultAppDirName = ".minichain"
)

// Config holds the resolved node settings
type Config struct {
	DataDir       string
	LogDir        string
	LogLevel      string
	Miner         string
	RPCListen     string
	MetricsListen string
	MaxAttempts   uint64

	// MinerKey is set when Miner was generated by Load
	MinerKey *crypto.KeyPair
}

// AppDir returns the default home of the node, $HOME/.minichain
func AppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultAppDirName
	}
	return filepath.Join(home, defaultAppDirName)
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	appDir := AppDir()
	v.SetDefault(KeyDataDir, filepath.Join(appDir, "data"))
	v.SetDefault(KeyLogDir, filepath.Join(appDir, "logs"))
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyMiner, "")
	v.SetDefault(KeyRPCListen, defaultRPCListen)
	v.SetDefault(KeyMetricsListen, "")
	v.SetDefault(KeyMaxAttempts, uint64(0))
}

// BindEnv makes v read MINICHAIN_* environment variables and search for a
// config file named config in the working directory and the app dir.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath(AppDir())
}

// ReadConfigFile reads the config file if one exists. It reports whether a
// file was used.
func ReadConfigFile(v *viper.Viper) (bool, error) {
	err := v.ReadInConfig()
	if err == nil {
		return true, nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, errors.Wrap(err, "failed to read config file")
}

// Load resolves the settings held by v and validates them. An empty miner
// is replaced by the address of a freshly generated key.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:       v.GetString(KeyDataDir),
		LogDir:        v.GetString(KeyLogDir),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
		Miner:         v.GetString(KeyMiner),
		RPCListen:     v.GetString(KeyRPCListen),
		MetricsListen: v.GetString(KeyMetricsListen),
		MaxAttempts:   v.GetUint64(KeyMaxAttempts),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Miner == "" {
		keyPair, err := crypto.NewKeyPair()
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate miner key")
		}
		cfg.Miner = keyPair.Address()
		cfg.MinerKey = keyPair
	}

	return cfg, nil
}

// Validate checks the settings that Load cannot repair
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data directory is required")
	}
	if !logger.ValidLevel(c.LogLevel) {
		return errors.Errorf("invalid log level %q", c.LogLevel)
	}
	if err := validateListen(c.RPCListen); err != nil {
		return errors.Wrap(err, "invalid rpc listen address")
	}
	if c.MetricsListen != "" {
		if err := validateListen(c.MetricsListen); err != nil {
			return errors.Wrap(err, "invalid metrics listen address")
		}
	}
	return nil
}

// LogFile returns the path of the rotated log file, or "" when file
// logging is disabled
func (c *Config) LogFile() string {
	if c.LogDir == "" {
		return ""
	}
	return filepath.Join(c.LogDir, logFilename)
}

func validateListen(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return errors.Errorf("missing port in %q", addr)
	}
	return nil
}
