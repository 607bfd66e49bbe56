package model

import "time"

// Export record types.
const (
	ExportTypeTopN  = "top-n"
	ExportTypeBR864 = "br864"
	// Bundle records use "bundle-" + category, e.g. "bundle-stems_8".
	ExportTypeBundlePrefix = "bundle-"
)

// Export records one packaging or export operation for an upload. Rows are
// append-only; history is never overwritten.
type Export struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UploadID     string    `json:"uploadId" gorm:"size:36;index;not null"`
	ExportType   string    `json:"exportType" gorm:"size:64"`
	OutputPath   string    `json:"outputPath" gorm:"size:767"`
	ManifestJSON string    `json:"manifest" gorm:"type:longtext"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Export) TableName() string {
	return "exports"
}
