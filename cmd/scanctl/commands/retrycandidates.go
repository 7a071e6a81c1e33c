package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewRetryCandidatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-candidates",
		Short: "List failed scans still eligible for retry",
		RunE:  runRetryCandidates,
	}
}

func runRetryCandidates(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var scans []scanDTO
	if _, err := apiGet(ctx, "/api/v1/scans/retry-candidates", &scans); err != nil {
		return err
	}

	if len(scans) == 0 {
		fmt.Println("no retry candidates")
		return nil
	}

	fmt.Printf("%-36s  %-24s  %-12s  %s\n", "ID", "IMAGE", "ERROR", "RETRIES")
	for _, s := range scans {
		image := fmt.Sprintf("%s:%s", s.ImageName, s.ImageTag)
		fmt.Printf("%-36s  %-24s  %-12s  %d\n", s.ID, image, s.ErrorCode, s.RetryCount)
	}
	return nil
}
