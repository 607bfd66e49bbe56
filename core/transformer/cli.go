package transformer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stemdesk/core/apperr"
	"stemdesk/core/extcmd"
)

// CLITransformer drives the thriven binary's stemmap, apply-stemmap and
// prep-br864 subcommands.
type CLITransformer struct {
	runner *extcmd.Runner
}

// NewCLITransformer creates a Transformer backed by the external CLI.
func NewCLITransformer(runner *extcmd.Runner) *CLITransformer {
	return &CLITransformer{runner: runner}
}

// classifyDoc is the loose shape of the template the CLI generates; only the
// per-file type guess is read out of it.
type classifyDoc struct {
	Items []struct {
		File     string `yaml:"file"`
		Detected string `yaml:"detected"`
		Type     string `yaml:"type"`
	} `yaml:"items"`
}

// Classify generates a throwaway stemmap template with the CLI and extracts
// its per-file type guesses.
func (t *CLITransformer) Classify(ctx context.Context, packDir string, opts ClassifyOptions) (map[string]string, error) {
	tmpPath := filepath.Join(packDir, ".classify.yaml")
	defer os.Remove(tmpPath)

	args := []string{packDir, "--out", tmpPath}
	if opts.Title != "" {
		args = append(args, "--title", opts.Title)
	}
	if opts.BPMMin > 0 {
		args = append(args, "--bpm-min", strconv.Itoa(opts.BPMMin))
	}
	if opts.BPMMax > 0 {
		args = append(args, "--bpm-max", strconv.Itoa(opts.BPMMax))
	}
	if _, err := t.runner.Run(ctx, "stemmap", args, extcmd.Options{}); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCollaborator, "classifier produced no template", err)
	}
	var doc classifyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.KindCollaborator, "decode classifier template", err)
	}

	guesses := make(map[string]string, len(doc.Items))
	for _, item := range doc.Items {
		guess := item.Detected
		if guess == "" {
			guess = item.Type
		}
		if item.File != "" {
			guesses[item.File] = guess
		}
	}
	return guesses, nil
}

// Materialize applies the saved stemmap via the CLI and reports the per-item
// outcome by inspecting the output directory and the tool's diagnostics.
func (t *CLITransformer) Materialize(ctx context.Context, packDir, mapPath, inDir, outDir string) (*Outcome, error) {
	args := []string{packDir, "--map", mapPath, "--in", inDir, "--out", outDir}
	stdout, err := t.runner.Run(ctx, "apply-stemmap", args, extcmd.Options{})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	// Missing-source diagnostics are reported per line by the tool.
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "missing:") || strings.HasPrefix(lower, "skip:") {
			parts := strings.SplitN(line, ":", 2)
			outcome.Failures = append(outcome.Failures, ItemFailure{
				File:   strings.TrimSpace(parts[1]),
				Reason: strings.ToLower(strings.TrimSuffix(parts[0], ":")),
			})
		}
	}

	entries, readErr := os.ReadDir(outDir)
	if readErr != nil {
		return nil, apperr.Wrap(apperr.KindCollaborator, "materialization produced no output directory", readErr)
	}
	for _, e := range entries {
		if !e.IsDir() {
			outcome.Materialized = append(outcome.Materialized, e.Name())
			continue
		}
		// Slot directories hold the renamed stems one level down.
		sub, subErr := os.ReadDir(filepath.Join(outDir, e.Name()))
		if subErr != nil {
			continue
		}
		for _, f := range sub {
			if !f.IsDir() {
				outcome.Materialized = append(outcome.Materialized, filepath.Join(e.Name(), f.Name()))
			}
		}
	}
	return outcome, nil
}

// PrepareHardware runs the BR-864 preparation step.
func (t *CLITransformer) PrepareHardware(ctx context.Context, packDir, inDir, outDir string, opts HardwareOptions) error {
	args := []string{packDir, "--in", inDir, "--out", outDir}
	if opts.PadToLongest {
		args = append(args, "--pad-to-longest")
	}
	if opts.TrimToShortest {
		args = append(args, "--trim-to-shortest")
	}
	_, err := t.runner.Run(ctx, "prep-br864", args, extcmd.Options{})
	return err
}
