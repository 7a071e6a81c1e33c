package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	flagImageName string
	flagImageTag  string
	flagRegistry  string
	flagForce     bool
)

type submitRequest struct {
	ImageName   string `json:"image_name"`
	ImageTag    string `json:"image_tag"`
	Registry    string `json:"registry"`
	ForceRescan bool   `json:"force_rescan"`
}

type submitResponse struct {
	CacheHit bool    `json:"cache_hit"`
	ScanDTO  scanDTO `json:"scan"`
}

func NewSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <image>",
		Short: "Submit an image for vulnerability scanning",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
	cmd.Flags().StringVar(&flagImageTag, "tag", "", "image tag (overrides any tag in the image argument)")
	cmd.Flags().StringVar(&flagRegistry, "registry", "", "registry (overrides any registry in the image argument)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "bypass the idempotency cache and force a fresh scan")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	flagImageName = args[0]

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var resp submitResponse
	httpResp, err := apiPost(ctx, "/api/v1/scan", submitRequest{
		ImageName:   flagImageName,
		ImageTag:    flagImageTag,
		Registry:    flagRegistry,
		ForceRescan: flagForce,
	}, &resp)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	cacheHeader := httpResp.Header.Get("X-Cache")
	fmt.Printf("%s Scan submitted\n", green("✓"))
	fmt.Printf("  ID:     %s\n", cyan(resp.ScanDTO.ID))
	fmt.Printf("  Status: %s\n", yellow(resp.ScanDTO.Status))
	fmt.Printf("  Cache:  %s\n", cacheHeader)
	return nil
}
