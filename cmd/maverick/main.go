// Command maverick runs and inspects declarative workflow definitions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"maverick/internal/config"
	"maverick/internal/logging"
)

var (
	cfgFile    string
	logger     = logging.Configure()
	runtimeCfg *config.Config
	rootCmd    = &cobra.Command{
		Use:   "maverick",
		Short: "Run and inspect declarative agent workflows",
		Long: `maverick loads workflow definitions written against the component
registry (actions, agents, generators, sub-workflows), checks their
prerequisites, and executes their step graph end to end.`,
	}
)

func init() {
	cobra.OnInitialize(initRuntimeConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./maverick.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

func initRuntimeConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maverick: loading config: %v\n", err)
		os.Exit(1)
	}
	runtimeCfg = cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
