package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagPage          int
	flagPageSize      int
	flagStatusFilter  string
	flagImageFilter   string
	flagCompliantOnly bool
)

func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scans",
		RunE:  runList,
	}
	cmd.Flags().IntVar(&flagPage, "page", 1, "page number")
	cmd.Flags().IntVar(&flagPageSize, "page-size", 20, "page size (max 100)")
	cmd.Flags().StringVar(&flagStatusFilter, "status", "", "filter by status")
	cmd.Flags().StringVar(&flagImageFilter, "image", "", "filter by image name substring")
	cmd.Flags().BoolVar(&flagCompliantOnly, "compliant-only", false, "show only compliant scans")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	path := fmt.Sprintf("/api/v1/scans?page=%d&page_size=%d", flagPage, flagPageSize)
	if flagStatusFilter != "" {
		path += "&status=" + flagStatusFilter
	}
	if flagImageFilter != "" {
		path += "&image=" + flagImageFilter
	}
	if flagCompliantOnly {
		path += "&compliant_only=true"
	}

	var resp listResponseDTO
	if _, err := apiGet(ctx, path, &resp); err != nil {
		return err
	}

	fmt.Printf("%-36s  %-24s  %-10s  %6s  %s\n", "ID", "IMAGE", "STATUS", "RISK", "COMPLIANT")
	for _, s := range resp.Scans {
		image := fmt.Sprintf("%s:%s", s.ImageName, s.ImageTag)
		fmt.Printf("%-36s  %-24s  %-10s  %6d  %v\n", s.ID, image, s.Status, s.RiskScore, s.IsCompliant)
	}
	fmt.Printf("\npage %d, %d total\n", resp.Page, resp.Total)
	return nil
}
