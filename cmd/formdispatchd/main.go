// Command formdispatchd runs the response dispatch pipeline: it accepts
// form responses over HTTP, stores them under shard-scoped identities and
// enqueues one job per configured job type.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/formdispatch/config"
)

var (
	configFile string
	envFile    string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "formdispatchd",
	Short:         "Form response dispatch daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (env FORMDISPATCH_* overrides it)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
	rootCmd.PersistentFlags().String("store", "", "store backend (mongo|postgres|sqlite|memory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Uint64("shard", 0, "shard id this process allocates for")
	bindFlag("store", "store")
	bindFlag("log_level", "log-level")
	bindFlag("shard_id", "shard")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(dlqCmd())
	rootCmd.AddCommand(idCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func bindFlag(key, flag string) {
	_ = v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

func initConfig() {
	// Variables already set in the environment win over the file.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: env file:", err)
	}
	config.Bind(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
}

// loadConfig reads the config file, if any, and validates the result.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return config.Load(v)
}
