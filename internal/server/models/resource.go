package models

import "time"

// Authorization statuses and defaults applied to resources.
const (
	AuthorizationUnauthorized = "unauthorized"
	DefaultRightsOwnership    = "company-owned"
	DefaultReviewer           = "automatic review"
)

// Resource is one stored file plus its descriptive metadata. FilePath is the
// storage key of the blob, not necessarily a filesystem path.
type Resource struct {
	ID                    int64     `json:"id"`
	Filename              string    `json:"filename"`
	FileType              string    `json:"file_type"`
	FilePath              string    `json:"file_path"`
	FileSize              int64     `json:"file_size"`
	UploadedAt            time.Time `json:"uploaded_at"`
	UserID                int64     `json:"user_id"`
	ResourceType          string    `json:"resource_type"`
	AuthorizationStatus   string    `json:"authorization_status"`
	AssetName             string    `json:"asset_name"`
	AssetNo               string    `json:"asset_no"`
	Project               string    `json:"project"`
	AssetLevel            string    `json:"asset_level"`
	CreationDate          string    `json:"creation_date"`
	Declarant             string    `json:"declarant"`
	CreationType          string    `json:"creation_type"`
	Creator               string    `json:"creator"`
	TrademarkRegNo        string    `json:"trademark_reg_no"`
	CertificateNo         string    `json:"certificate_no"`
	CertificatePlatform   string    `json:"certificate_platform"`
	CertificateTimestamp  string    `json:"certificate_timestamp"`
	FileHash              string    `json:"file_hash"`
	VerifyURL             string    `json:"verify_url"`
	InUse                 bool      `json:"in_use"`
	ExternalAuthorization bool      `json:"external_authorization"`
	RightsOwnership       string    `json:"rights_ownership"`
	DeclarationDate       string    `json:"declaration_date"`
	Reviewer              string    `json:"reviewer"`
	ReviewDate            string    `json:"review_date"`
	DHash                 string    `json:"-"`
	PHash                 string    `json:"-"`
}

// ResourceFilter narrows a user's resource listing. Empty fields are ignored.
type ResourceFilter struct {
	SearchKeyword string `json:"searchKeyword"`
	Project       string `json:"project"`
	Type          string `json:"type"`
	AssetLevel    string `json:"assetLevel"`
}

// ResourceSummary is one (resource_type, authorization_status) bucket.
type ResourceSummary struct {
	ResourceType        string `json:"resource_type"`
	AuthorizationStatus string `json:"authorization_status"`
	Count               int64  `json:"count"`
}

// ResourceVersion is the projection of a resource returned in detail views.
type ResourceVersion struct {
	ID                    int64  `json:"id"`
	AssetName             string `json:"asset_name"`
	AssetNo               string `json:"asset_no"`
	CertificateNo         string `json:"certificate_no"`
	CertificatePlatform   string `json:"certificate_platform"`
	CertificateTimestamp  string `json:"certificate_timestamp"`
	ResourceType          string `json:"resource_type"`
	AssetLevel            string `json:"asset_level"`
	Project               string `json:"project"`
	Status                string `json:"status"`
	InUse                 bool   `json:"in_use"`
	ExternalAuthorization bool   `json:"external_authorization"`
	Creator               string `json:"creator"`
	CompletionDate        string `json:"completion_date"`
	RightsOwnership       string `json:"rights_ownership"`
	Declarant             string `json:"declarant"`
	DeclarationDate       string `json:"declaration_date"`
	Reviewer              string `json:"reviewer"`
	ReviewDate            string `json:"review_date"`
	Filename              string `json:"filename"`
	FileType              string `json:"file_type"`
	FileURL               string `json:"file_url"`
	IsImage               bool   `json:"is_image"`
	FileHash              string `json:"file_hash"`
}

// ResourceDetail is a resource view plus every version sharing its asset name.
type ResourceDetail struct {
	ResourceVersion
	Versions []ResourceVersion `json:"versions"`
}

// Certificate is the notarization stamp returned when assets are created.
type Certificate struct {
	CertificateNo string `json:"certificateNo"`
	Platform      string `json:"platform"`
	Timestamp     string `json:"timestamp"`
	FileHash      string `json:"fileHash"`
	VerifyURL     string `json:"verifyUrl"`
}
