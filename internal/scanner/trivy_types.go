package scanner

// TrivyReport is the top-level shape of the scanner's JSON output.
type TrivyReport struct {
	SchemaVersion int           `json:"SchemaVersion"`
	ArtifactName  string        `json:"ArtifactName"`
	Metadata      TrivyMetadata `json:"Metadata"`
	Results       []TrivyResult `json:"Results"`
}

type TrivyMetadata struct {
	RepoDigests []string `json:"RepoDigests"`
}

type TrivyResult struct {
	Target          string                `json:"Target"`
	Vulnerabilities []TrivyVulnerability  `json:"Vulnerabilities"`
}

type TrivyVulnerability struct {
	VulnerabilityID  string                 `json:"VulnerabilityID"`
	PkgName          string                 `json:"PkgName"`
	InstalledVersion string                 `json:"InstalledVersion"`
	FixedVersion     string                 `json:"FixedVersion"`
	Severity         string                 `json:"Severity"`
	PublishedDate    string                 `json:"PublishedDate"`
	CVSS             map[string]CVSSSource  `json:"CVSS"`
}

type CVSSSource struct {
	V2Score *float64 `json:"V2Score"`
	V3Score *float64 `json:"V3Score"`
}
