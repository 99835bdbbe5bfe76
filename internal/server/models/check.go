package models

import "time"

// Risk levels of an external check.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// Evidence is a library resource that resembles checked content.
type Evidence struct {
	AssetName  string `json:"assetName"`
	ID         int64  `json:"id"`
	FileType   string `json:"file_type"`
	Similarity int    `json:"similarity"`
}

// CheckResult is a persisted external infringement check.
type CheckResult struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"-"`
	URL                  string     `json:"url"`
	RiskLevel            string     `json:"riskLevel"`
	InfringementEvidence []Evidence `json:"infringementEvidence"`
	Recommendation       string     `json:"recommendation"`
	CreatedAt            time.Time  `json:"createdAt"`
}
