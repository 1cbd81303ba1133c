package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "PYCDIS"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pycdis",
		Short:         "Inspect compiled Python bytecode",
		Long:          "Decode CPython 3.8-3.10 .pyc files and disassemble the code objects they contain.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			processGlobalFlags()
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.pycdis.yaml)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("python-version", "", "opcode table to use instead of the one the magic selects")
	flags.Bool("big-ints", false, "decode integers beyond 64 bits instead of failing")
	flags.Int("concurrency", 0, "files to load at once (default GOMAXPROCS)")
	for _, name := range []string{"config", "no-color", "log-level", "python-version", "big-ints", "concurrency"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newDisCmd(),
		newDumpCmd(),
		newHeaderCmd(),
		newCompileCmd(),
		newVersionCmd(),
	)
	return root
}

// initConfig reads the optional config file and the PYCDIS_ environment.
// A missing default config file is not an error.
func initConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	viper.SetConfigFile(filepath.Join(home, ".pycdis.yaml"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() {
	if viper.GetBool("no-color") || !isTerminal(os.Stdout) {
		color.NoColor = true
	}
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: color.NoColor,
	}).Level(level).With().Timestamp().Logger()
}
