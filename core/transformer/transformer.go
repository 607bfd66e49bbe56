// Package transformer wraps the external stem classification and
// materialization service: type guessing per file, stemmap materialization
// into the organized stems directory, and BR-864 hardware preparation.
package transformer

import "context"

// ItemFailure reports one stemmap item apply could not materialize.
type ItemFailure struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Outcome is the result of materializing a stemmap.
type Outcome struct {
	Materialized []string      `json:"materialized"`
	Failures     []ItemFailure `json:"failures,omitempty"`
}

// HardwareOptions tune BR-864 preparation.
type HardwareOptions struct {
	PadToLongest   bool
	TrimToShortest bool
}

// ClassifyOptions parameterize template generation in the external tool.
type ClassifyOptions struct {
	Title  string
	BPMMin int
	BPMMax int
}

// Transformer is the external collaborator for stem classification and
// format conversion.
type Transformer interface {
	// Classify returns a slot-type guess per file name for the files under
	// the upload's raw directory.
	Classify(ctx context.Context, packDir string, opts ClassifyOptions) (map[string]string, error)

	// Materialize reads the saved stemmap document at mapPath and copies the
	// enabled items from inDir into outDir organized by slot. The document
	// itself is never mutated.
	Materialize(ctx context.Context, packDir, mapPath, inDir, outDir string) (*Outcome, error)

	// PrepareHardware converts the organized stems in inDir into the BR-864
	// ready format under outDir, writing a manifest alongside.
	PrepareHardware(ctx context.Context, packDir, inDir, outDir string, opts HardwareOptions) error
}
