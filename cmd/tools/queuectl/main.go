// cmd/tools/queuectl/main.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "queuectl",
	Short: "Operate the notification worker",
	Long: `queuectl talks to a running notification worker over its ops API:
inspect and feed the work queue, run sweeps on demand, check the scheduler.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.queuectl.yaml)")
	rootCmd.PersistentFlags().String("api-url", "http://localhost:8080", "ops API base URL")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON responses")

	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(
		statsCmd(),
		enqueueCmd(),
		requeueCmd(),
		cleanupCmd(),
		processCmd(),
		statusCmd(),
		triggerCmd(),
		registryCmd(),
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".queuectl")
	}

	viper.SetEnvPrefix("QUEUECTL")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config %s: %v\n", cfgFile, err)
	}
}

func newClient() *apiClient {
	return newAPIClient(viper.GetString("api_url"), viper.GetDuration("timeout"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
