// Package analyzer wraps the external audio analysis service. The actual
// measurement work (loudness, peak, RMS, silence, duplicate hashing, ranking)
// happens outside this process; StemDesk only exchanges artifact files with it.
package analyzer

import "context"

// Progress receives coarse percentage updates while a stage runs.
type Progress func(pct int)

// Analyzer is the external collaborator driving the scan/analyze/rank stages.
type Analyzer interface {
	// Scan indexes the audio files under inputDir and writes the raw index
	// artifact (file list plus duplicate groups) to outPath.
	Scan(ctx context.Context, inputDir, outPath string, progress Progress) error

	// Analyze enriches a raw index with per-file audio metrics, writing the
	// analysis index artifact to outPath.
	Analyze(ctx context.Context, rawIndexPath, outPath string, progress Progress) error

	// Rank copies the top-N ranked files into outDir and writes a report.
	Rank(ctx context.Context, analysisIndexPath, outDir string, topN int, progress Progress) error
}
