package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type complianceSummaryRow struct {
	ComplianceStatus string  `json:"compliance_status"`
	Count            int64   `json:"count"`
	AvgRiskScore     float64 `json:"avg_risk_score"`
}

type dashboardStatsDTO struct {
	Compliance []complianceSummaryRow `json:"compliance_summary"`
}

func NewComplianceSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compliance-summary",
		Short: "Show the compliance_status breakdown across completed scans",
		RunE:  runComplianceSummary,
	}
}

func runComplianceSummary(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var resp dashboardStatsDTO
	if _, err := apiGet(ctx, "/api/v1/dashboard/stats", &resp); err != nil {
		return err
	}

	fmt.Printf("%-16s  %8s  %14s\n", "STATUS", "COUNT", "AVG RISK")
	for _, row := range resp.Compliance {
		fmt.Printf("%-16s  %8d  %14.1f\n", row.ComplianceStatus, row.Count, row.AvgRiskScore)
	}
	return nil
}
