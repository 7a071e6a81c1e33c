package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var flagID string

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <scan-id>",
		Short: "Poll a scan's lightweight status",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	flagID = args[0]

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var resp statusDTO
	if _, err := apiGet(ctx, "/api/v1/scan/"+flagID+"/status", &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("  ID:       %s\n", cyan(resp.ID))
	switch resp.Status {
	case "completed":
		fmt.Printf("  Status:   %s\n", green(resp.Status))
	case "failed":
		fmt.Printf("  Status:   %s\n", red(resp.Status))
	default:
		fmt.Printf("  Status:   %s\n", yellow(resp.Status))
	}
	fmt.Printf("  Progress: %d%%\n", resp.Progress)
	if resp.ErrorMessage != "" {
		fmt.Printf("  Error:    %s\n", red(resp.ErrorMessage))
	}
	return nil
}
