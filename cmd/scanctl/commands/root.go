package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfg *Config

func Execute() {
	root := &cobra.Command{
		Use:   "scanctl",
		Short: "Container vulnerability scan control CLI",
		Long:  "Submit images for vulnerability scanning, poll their status, and inspect dashboard aggregates.",
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default: $HOME/.scanctl.yaml)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = LoadConfig(path)
		return err
	}

	root.AddCommand(NewSubmitCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewListCmd())
	root.AddCommand(NewDeleteCmd())
	root.AddCommand(NewStatsCmd())
	root.AddCommand(NewRetryCandidatesCmd())
	root.AddCommand(NewComplianceSummaryCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
