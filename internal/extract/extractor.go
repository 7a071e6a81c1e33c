// Package extract computes counts, weighted risk score, CVSS aggregates,
// and compliance classification from a parsed scanner report.
package extract

import (
	"math"
	"strings"
	"time"

	"github.com/scanforge/vulnscan-engine/internal/scanmodel"
	"github.com/scanforge/vulnscan-engine/internal/scanner"
)

// Weights carries the configurable per-severity risk weights.
type Weights struct {
	Critical int
	High     int
	Medium   int
	Low      int
}

// DefaultWeights are the baseline severity weights: 100/50/10/1, with
// unknown severities contributing 0.
func DefaultWeights() Weights {
	return Weights{Critical: 100, High: 50, Medium: 10, Low: 1}
}

// Result is the full set of derived fields written back onto the scan
// entity at terminal completion.
type Result struct {
	Critical, High, Medium, Low, Unknown int
	Total, Fixable, Unfixable            int
	RiskScore                            int
	MaxCVSS, AvgCVSS                     *float64
	IsCompliant                          bool
	ComplianceStatus                     scanmodel.ComplianceStatus
	ImageDigest                          *string
	Details                              []scanmodel.VulnerabilityDetail
}

// Extract walks a parsed Trivy report, tallying severities, risk score,
// CVSS extremes, and fixability, and classifies overall compliance.
func Extract(report *scanner.TrivyReport, weights Weights) Result {
	var res Result
	var cvssScores []float64

	for _, target := range report.Results {
		for _, vuln := range target.Vulnerabilities {
			sev := classifySeverity(vuln.Severity)
			switch sev {
			case "CRITICAL":
				res.Critical++
			case "HIGH":
				res.High++
			case "MEDIUM":
				res.Medium++
			case "LOW":
				res.Low++
			default:
				res.Unknown++
			}

			fixable := isFixable(vuln.FixedVersion)
			if fixable {
				res.Fixable++
			} else {
				res.Unfixable++
			}

			score := extractCVSS(vuln.CVSS)
			if score != nil {
				cvssScores = append(cvssScores, *score)
			}

			var published *time.Time
			if t, err := time.Parse(time.RFC3339, vuln.PublishedDate); err == nil {
				published = &t
			}

			res.Details = append(res.Details, scanmodel.VulnerabilityDetail{
				VulnerabilityID: vuln.VulnerabilityID,
				PackageName:     vuln.PkgName,
				PackageVersion:  vuln.InstalledVersion,
				FixedVersion:    vuln.FixedVersion,
				Severity:        sev,
				CVSSScore:       score,
				IsFixable:       fixable,
				PublishedDate:   published,
			})
		}
	}

	res.Total = res.Critical + res.High + res.Medium + res.Low + res.Unknown

	res.RiskScore = weights.Critical*res.Critical + weights.High*res.High + weights.Medium*res.Medium + weights.Low*res.Low

	if len(cvssScores) > 0 {
		max := cvssScores[0]
		sum := 0.0
		for _, s := range cvssScores {
			if s > max {
				max = s
			}
			sum += s
		}
		avg := math.Round((sum/float64(len(cvssScores)))*100) / 100
		res.MaxCVSS = &max
		res.AvgCVSS = &avg
	}

	switch {
	case res.Critical > 0 || res.High > 0:
		res.ComplianceStatus = scanmodel.ComplianceNonCompliant
		res.IsCompliant = false
	case res.Medium > 0 || res.Low > 0:
		res.ComplianceStatus = scanmodel.CompliancePendingReview
		res.IsCompliant = false
	default:
		res.ComplianceStatus = scanmodel.ComplianceCompliant
		res.IsCompliant = true
	}

	if len(report.Metadata.RepoDigests) > 0 {
		digest := report.Metadata.RepoDigests[0]
		res.ImageDigest = &digest
	}

	return res
}

func classifySeverity(raw string) string {
	switch strings.ToUpper(raw) {
	case "CRITICAL", "HIGH", "MEDIUM", "LOW":
		return strings.ToUpper(raw)
	default:
		return "UNKNOWN"
	}
}

func isFixable(fixedVersion string) bool {
	return strings.TrimSpace(fixedVersion) != ""
}

// extractCVSS follows the priority order: CVSS.nvd.V3Score, then any
// <source>.V3Score, then CVSS.nvd.V2Score, then any <source>.V2Score.
func extractCVSS(cvss map[string]scanner.CVSSSource) *float64 {
	if cvss == nil {
		return nil
	}
	if nvd, ok := cvss["nvd"]; ok && nvd.V3Score != nil {
		return nvd.V3Score
	}
	for source, data := range cvss {
		if source == "nvd" {
			continue
		}
		if data.V3Score != nil {
			return data.V3Score
		}
	}
	if nvd, ok := cvss["nvd"]; ok && nvd.V2Score != nil {
		return nvd.V2Score
	}
	for source, data := range cvss {
		if source == "nvd" {
			continue
		}
		if data.V2Score != nil {
			return data.V2Score
		}
	}
	return nil
}
