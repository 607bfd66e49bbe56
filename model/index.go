package model

import (
	"fmt"
	"time"
)

// AudioMetrics is the per-file measurement sub-object produced by the
// analyzer. StemDesk treats the values as opaque; only presence matters here.
type AudioMetrics struct {
	LoudnessLUFS  float64 `json:"loudnessLufs"`
	PeakDB        float64 `json:"peakDb"`
	RMSDB         float64 `json:"rmsDb"`
	SilenceRatio  float64 `json:"silenceRatio"`
	Loopability   float64 `json:"loopability"`
	SampleRate    int     `json:"sampleRate"`
	BitDepth      int     `json:"bitDepth"`
	Channels      int     `json:"channels"`
}

// FileEntry is one audio file in a raw or analysis index.
type FileEntry struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	RelPath         string        `json:"relPath"`
	SizeBytes       int64         `json:"sizeBytes"`
	DurationSeconds float64       `json:"durationSeconds"`
	Metrics         *AudioMetrics `json:"metrics,omitempty"` // nil until the analyze stage ran
}

// DuplicateGroup is a set of files sharing one content hash.
type DuplicateGroup struct {
	Hash    string   `json:"hash"`
	FileIDs []string `json:"fileIds"`
}

// RawIndex is the durable artifact of the scan stage.
type RawIndex struct {
	Root        string           `json:"root"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Files       []FileEntry      `json:"files"`
	Duplicates  []DuplicateGroup `json:"duplicates"`
}

// Validate checks internal consistency: every file id referenced by a
// duplicate group must exist in the file list.
func (ri *RawIndex) Validate() error {
	known := make(map[string]bool, len(ri.Files))
	for _, f := range ri.Files {
		if f.ID == "" {
			return fmt.Errorf("file entry %q has empty id", f.Name)
		}
		known[f.ID] = true
	}
	for _, g := range ri.Duplicates {
		if g.Hash == "" {
			return fmt.Errorf("duplicate group has empty hash")
		}
		for _, id := range g.FileIDs {
			if !known[id] {
				return fmt.Errorf("duplicate group %s references unknown file id %s", g.Hash, id)
			}
		}
	}
	return nil
}

// AnalysisIndex is the durable artifact of the analyze stage: the raw index
// file list enriched with per-file metrics.
type AnalysisIndex struct {
	Root        string      `json:"root"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Files       []FileEntry `json:"files"`
}

// AnalysisResult is the database record pairing the scan and analyze
// artifacts for one upload. At most one row per upload; reruns replace it
// wholesale rather than merging.
type AnalysisResult struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	UploadID          string    `json:"uploadId" gorm:"size:36;uniqueIndex;not null"`
	RawIndexJSON      string    `json:"-" gorm:"type:longtext"`
	AnalysisIndexJSON string    `json:"-" gorm:"type:longtext"`
	DuplicatesJSON    string    `json:"-" gorm:"type:longtext"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (AnalysisResult) TableName() string {
	return "analysis_results"
}
