package analyzer

import (
	"context"
	"strconv"

	"stemdesk/core/extcmd"
)

// CLIAnalyzer drives the thriven binary. Argument shapes follow the tool's
// scan/analyze/export subcommands.
type CLIAnalyzer struct {
	runner *extcmd.Runner
}

// NewCLIAnalyzer creates an Analyzer backed by the external CLI.
func NewCLIAnalyzer(runner *extcmd.Runner) *CLIAnalyzer {
	return &CLIAnalyzer{runner: runner}
}

// Scan indexes the audio files under inputDir into the raw index at outPath.
func (a *CLIAnalyzer) Scan(ctx context.Context, inputDir, outPath string, progress Progress) error {
	args := []string{inputDir, "-o", outPath, "-r"}
	_, err := a.runner.Run(ctx, "scan", args, extcmd.Options{OnProgress: progress})
	return err
}

// Analyze enriches the raw index at rawIndexPath into the analysis index at
// outPath.
func (a *CLIAnalyzer) Analyze(ctx context.Context, rawIndexPath, outPath string, progress Progress) error {
	args := []string{rawIndexPath, "-o", outPath, "-p", "4"}
	_, err := a.runner.Run(ctx, "analyze", args, extcmd.Options{OnProgress: progress})
	return err
}

// Rank exports the top-N ranked files into outDir with a report.
func (a *CLIAnalyzer) Rank(ctx context.Context, analysisIndexPath, outDir string, topN int, progress Progress) error {
	args := []string{analysisIndexPath, "-t", strconv.Itoa(topN), "-o", outDir}
	_, err := a.runner.Run(ctx, "export", args, extcmd.Options{OnProgress: progress})
	return err
}
