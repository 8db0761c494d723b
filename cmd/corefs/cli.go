package main

import (
	"fmt"
	"os"
	"path/filepath"

	isatty "github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corefs/corefs/pkg/elog"
)

// log is the elog.View every subcommand logs and reports progress
// through, wired up once in PersistentPreRunE rather than threaded
// through every call.
var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool
	flagConfig  string
)

const (
	configFileName  = "corefs"
	defaultSizeKey  = "default-size"
	defaultImageKey = "default-image"
)

var rootCmd = &cobra.Command{
	Use:   "corefs",
	Short: "CoreFS image tool",
	Long: `corefs is a demo CLI around the CoreFS embedded filesystem core: it
formats simulated NOR-flash images, mounts them, and exercises the file API
through an interactive shell.`,
}

func commandInit() {

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a corefs config file (default $HOME/.corefs.yaml)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {

		logger := &elog.CLI{}

		logger.DisableTTY = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
		logger.DisableColors = logger.DisableTTY

		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}

		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger

		initConfig()

		return nil
	}

	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(shellCmd)

}

// initConfig loads optional CLI defaults (default image path, default
// partition size): an explicit --config path, or
// $HOME/.corefs.yaml, falling back to hardcoded defaults when neither
// is found. The core library itself never touches viper -- only this
// demo binary does.
func initConfig() {

	if flagConfig != "" {
		viper.SetConfigFile(flagConfig)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName("." + configFileName)
	}

	viper.SetDefault(defaultSizeKey, "2MB")
	viper.SetDefault(defaultImageKey, filepath.Join(os.TempDir(), "corefs.img"))

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	} else {
		log.Debugf("no config file found, using built-in defaults")
	}

}

func fatalf(format string, args ...interface{}) {
	log.Errorf(format, args...)
	os.Exit(1)
}

func printf(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
