// Package logger provides the subsystem loggers shared by every package of
// the node. All subsystems write through one btclog backend to stdout and,
// once InitLogRotator is called, to a rotating log file.
package logger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	defaultThresholdKB = 10 * 1024
	defaultMaxRolls    = 3
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)

	rotatorMu.Lock()
	defer rotatorMu.Unlock()
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It is nil until
	// InitLogRotator is called.
	logRotator *rotator.Rotator
	rotatorMu  sync.Mutex
)

// SubsystemTags is an enum of all sub system tags
var SubsystemTags = struct {
	CHAN,
	MINR,
	UTXO,
	STOR,
	RPCS,
	NODE string
}{
	CHAN: "CHAN",
	MINR: "MINR",
	UTXO: "UTXO",
	STOR: "STOR",
	RPCS: "RPCS",
	NODE: "NODE",
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	SubsystemTags.CHAN: backendLog.Logger(SubsystemTags.CHAN),
	SubsystemTags.MINR: backendLog.Logger(SubsystemTags.MINR),
	SubsystemTags.UTXO: backendLog.Logger(SubsystemTags.UTXO),
	SubsystemTags.STOR: backendLog.Logger(SubsystemTags.STOR),
	SubsystemTags.RPCS: backendLog.Logger(SubsystemTags.RPCS),
	SubsystemTags.NODE: backendLog.Logger(SubsystemTags.NODE),
}

func init() {
	for _, logger := range subsystemLoggers {
		logger.SetLevel(btclog.LevelInfo)
	}
}

// Get returns a logger of a specific sub system
func Get(tag string) (logger btclog.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// SupportedSubsystems returns a sorted slice of the supported subsystems
// for logging purposes.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// InitLogRotator initializes the logging rotater to write logs to logFile
// and create roll files in the same directory.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}

	r, err := rotator.New(logFile, defaultThresholdKB, false, defaultMaxRolls)
	if err != nil {
		return errors.Wrap(err, "failed to create file rotator")
	}

	rotatorMu.Lock()
	defer rotatorMu.Unlock()
	if logRotator != nil {
		logRotator.Close()
	}
	logRotator = r
	return nil
}

// CloseLogRotator flushes and closes the log file, if any
func CloseLogRotator() {
	rotatorMu.Lock()
	defer rotatorMu.Unlock()
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
}

// SetLogLevel sets the logging level for provided subsystem. Unknown
// subsystems and levels are rejected.
func SetLogLevel(subsystemID string, logLevel string) error {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return errors.Errorf("unknown subsystem %q, supported: %s",
			subsystemID, strings.Join(SupportedSubsystems(), ", "))
	}

	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return errors.Errorf("invalid log level %q", logLevel)
	}
	logger.SetLevel(level)
	return nil
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
func SetLogLevels(logLevel string) error {
	if _, ok := btclog.LevelFromString(logLevel); !ok {
		return errors.Errorf("invalid log level %q", logLevel)
	}
	for subsystemID := range subsystemLoggers {
		if err := SetLogLevel(subsystemID, logLevel); err != nil {
			return err
		}
	}
	return nil
}

// ValidLevel reports whether logLevel names a btclog level
func ValidLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// LogClosure is a closure that can be printed with %s to be used to
// generate expensive-to-create data for a detailed log level and avoid doing
// the work if the data isn't printed.
type LogClosure func() string

func (c LogClosure) String() string {
	return c()
}

// NewLogClosure casts a function to a LogClosure.
// See LogClosure for details.
func NewLogClosure(c func() string) LogClosure {
	return c
}
