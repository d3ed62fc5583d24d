package domain

import "time"

type Severity string

const (
	SeverityHigh    Severity = "High"
	SeverityMedium  Severity = "Medium"
	SeverityLow     Severity = "Low"
	SeverityUnknown Severity = "Unknown"
)

type ContextLevel string

const (
	LevelHost ContextLevel = "host"
	LevelPort ContextLevel = "port"
)

// FindingContext links a finding back to where it was reported.
type FindingContext struct {
	Level    ContextLevel `json:"level"`
	Port     int          `json:"port,omitempty"`
	Protocol string       `json:"protocol,omitempty"`
	Service  string       `json:"service,omitempty"`
	Product  string       `json:"product,omitempty"`
}

type Finding struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Output      string         `json:"output"`
	Severity    Severity       `json:"severity"`
	AdvisoryRef string         `json:"advisory_ref,omitempty"`
	Context     FindingContext `json:"context"`
}

type HostStatus string

const (
	HostUp   HostStatus = "up"
	HostDown HostStatus = "down"
)

// ScanResult is the canonical in-memory form of one scan's output.
type ScanResult struct {
	Target    string       `json:"target"`
	Status    HostStatus   `json:"status"`
	Address   string       `json:"address,omitempty"`
	Hostname  string       `json:"hostname,omitempty"`
	OS        string       `json:"os,omitempty"`
	Ports     []PortResult `json:"ports"`
	Findings  []Finding    `json:"findings"`
	ScannedAt time.Time    `json:"scanned_at"`
}

type Classification string

const (
	ClassInfrastructure Classification = "Infrastructure"
	ClassApplication    Classification = "Application"
	ClassDatabase       Classification = "Database"
)

type RiskCategory string

const (
	RiskVeryLow  RiskCategory = "VeryLow"
	RiskLow      RiskCategory = "Low"
	RiskMedium   RiskCategory = "Medium"
	RiskHigh     RiskCategory = "High"
	RiskVeryHigh RiskCategory = "VeryHigh"
)

// Rank orders categories from least to most severe.
func (c RiskCategory) Rank() int {
	switch c {
	case RiskVeryLow:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskVeryHigh:
		return 4
	}
	return -1
}

type Risk struct {
	Score    float64      `json:"score"`
	Category RiskCategory `json:"category"`
}

type TreatmentAction string

const (
	TreatAccept   TreatmentAction = "Accept"
	TreatMitigate TreatmentAction = "Mitigate"
	TreatTransfer TreatmentAction = "Transfer"
	TreatAvoid    TreatmentAction = "Avoid"
)

type Treatment struct {
	Action        TreatmentAction `json:"action"`
	Justification string          `json:"justification"`
	Steps         []string        `json:"steps"`
}

type EnrichedFinding struct {
	Finding
	Classification Classification `json:"classification"`
	Risk           Risk           `json:"risk"`
	Treatment      Treatment      `json:"treatment"`
	Advisory       *Advisory      `json:"advisory,omitempty"`
}

type Summary struct {
	Count     int          `json:"count"`
	MaxScore  float64      `json:"max_score"`
	MeanScore float64      `json:"mean_score"`
	Category  RiskCategory `json:"category"`
}

type EnrichedScanResult struct {
	Target    string            `json:"target"`
	Status    HostStatus        `json:"status"`
	Address   string            `json:"address,omitempty"`
	Hostname  string            `json:"hostname,omitempty"`
	OS        string            `json:"os,omitempty"`
	Ports     []PortResult      `json:"ports"`
	Findings  []EnrichedFinding `json:"findings"`
	Summary   Summary           `json:"summary"`
	ScannedAt time.Time         `json:"scanned_at"`
}
