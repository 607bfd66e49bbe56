package model

import "time"

// Upload lifecycle statuses. Stage transitions set the in-progress value
// before invoking the external collaborator and the done value (or the
// error marker) after, so a later read never sees an eternally-running stage.
const (
	StatusUploaded        = "uploaded"
	StatusScanning        = "scanning"
	StatusScanned         = "scanned"
	StatusAnalyzing       = "analyzing"
	StatusAnalyzed        = "analyzed"
	StatusExporting       = "exporting"
	StatusExported        = "exported"
	StatusApplyingStemmap = "applying-stemmap"
	StatusStemmapApplied  = "stemmap-applied"
	StatusPreparingBR864  = "preparing-br864"
	StatusBR864Ready      = "br864-ready"

	StatusScanFailed    = "scan-failed"
	StatusAnalyzeFailed = "analyze-failed"
	StatusExportFailed  = "export-failed"
	StatusApplyFailed   = "apply-failed"
	StatusBR864Failed   = "br864-failed"
)

// Upload represents one user-submitted batch of stems plus its workspace.
type Upload struct {
	ID             string    `json:"uploadId" gorm:"primaryKey;size:36"`
	FolderPath     string    `json:"-" gorm:"size:767;not null"` // workspace root, not exposed in API
	FolderName     string    `json:"folderName" gorm:"size:255;not null"`
	FileCount      int       `json:"fileCount"`
	TotalSizeBytes int64     `json:"totalSize"`
	Status         string    `json:"status" gorm:"size:32;default:uploaded"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Upload) TableName() string {
	return "uploads"
}
