// conf is a helper for perftest configuration for both command line interface
// and environment variables.
// It gives ability to register arguments which will be fetched from
// CLI input OR environment variable.
//
// When `ParseEnv` is executed, only the environment arguments are parsed and
// ready to be used in flag values. `ParseEnv` can be run multiple times.
//
// When `ParseFlags` is executed, the arguments from both CLI and Env are
// parsed. In case of --help option it prints help for all registered flags,
// which gives a whole overview of the tool configuration.
package conf

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("perftest", "No help available")
	// Default flags and values.
	logLevelFlag = NewStringFlag(
		"log",
		"Log level: debug, info, warn, error, fatal, panic",
		"info",
	)
	isEnvParsed = false
)

// SetHelp sets the help message for the CLI.
// We need to expose this function so the commands can set their own help.
func SetHelp(help string) {
	app.Help = help
}

// SetAppName sets application name for CLI output.
// We need to expose this function so the commands can set their own name.
func SetAppName(name string) {
	app.Name = name
}

// AppName returns specified app name.
func AppName() string {
	return app.Name
}

// LogLevel returns configured log level from input option or env variable.
// If it cannot parse the configured level, it falls back to the default value.
func LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(logLevelFlag.Value())
	if err == nil {
		return level
	}

	level, err = logrus.ParseLevel(logLevelFlag.defaultValue)
	if err == nil {
		return level
	}

	// Programmer error.
	panic(errors.Wrap(err, "parsing log level failed"))
}

// ParseFlags parse both the command line flags of the process and
// environment variables.
func ParseFlags() error {
	_, err := app.Parse(os.Args[1:])
	if err == nil {
		isEnvParsed = true
		return nil
	}

	return errors.Wrapf(err, "could not parse command line flags")
}

// ParseEnv parse the environment for arguments.
func ParseEnv() error {
	_, err := app.Parse([]string{})
	if err == nil {
		isEnvParsed = true
		return nil
	}

	return errors.Wrapf(err, "could not parse environment flags")
}

// GetFlags returns registered flags as a map with their current values.
// It is used to snapshot the effective configuration into run metadata.
func GetFlags() map[string]string {
	flagsMap := map[string]string{}
	for _, flag := range app.Model().Flags {
		flagsMap[flag.Name] = flag.Value.String()
	}
	return flagsMap
}
