package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tidy-go/internal/compare"
	"tidy-go/internal/config"
	"tidy-go/internal/dedup"
	"tidy-go/internal/dirtree"
	"tidy-go/internal/progress"
	"tidy-go/internal/report"
	"tidy-go/internal/snapshot"
)

var version = "dev"

// errChangesDetected makes compare exit with status 1.
var errChangesDetected = errors.New("changes detected")

type options struct {
	configPath      string
	workers         int
	algorithm       string
	traversal       string
	skip            []string
	continueOnError bool
	verbose         bool
	noProgress      bool

	format  string
	save    string
	minSize string

	cfg *config.Config
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errChangesDetected):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "tidy-go [flags] PATH...",
		Short: "Find empty directories and duplicate files",
		Long: heredoc.Doc(`
			tidy-go scans each PATH, reports the directories that are empty and
			groups files whose content is byte-for-byte identical.

			Nothing is modified on disk. Symbolic links are never followed.

			Exit status is 0 on success and 2 on error.
		`),
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(opts.verbose)
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "config.toml", "Config file path (TOML or YAML)")
	pf.IntVarP(&opts.workers, "workers", "w", 0, "Number of hashing workers (default from config)")
	pf.StringVarP(&opts.algorithm, "algorithm", "a", "", "Fingerprint algorithm: blake3, highway, md5, shake256")
	pf.StringVar(&opts.traversal, "traversal", "", "Tree traversal: sequential or parallel")
	pf.StringSliceVar(&opts.skip, "skip", nil, "Exclusion patterns (dir/ prunes directories, globs match files)")
	pf.BoolVar(&opts.continueOnError, "continue-on-error", false, "Report unreadable entries instead of aborting")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "o", "", "Output format: text or json")
	f.StringVar(&opts.save, "save", "", "Write a snapshot of the scan (.json or .json.zst)")
	f.StringVar(&opts.minSize, "min-size", "", "Hide duplicate groups of files smaller than this (e.g. 4KiB)")

	cmd.AddCommand(newCompareCmd(opts))

	return cmd
}

func newCompareCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "compare SNAPSHOT DIRECTORY",
		Short: "Compare a saved snapshot against the current directory",
		Long: heredoc.Doc(`
			compare rescans DIRECTORY with the snapshot's fingerprint algorithm and
			lists the files added, modified or deleted since the snapshot was saved.

			Exit status is 0 when nothing changed, 1 when changes were found and
			2 on error.
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd.Context(), opts, args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func setupLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig merges the config file with flags that were set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("algorithm") {
		cfg.Algorithm = opts.algorithm
	}
	if flags.Changed("traversal") {
		cfg.Traversal = opts.traversal
	}
	if flags.Changed("skip") {
		cfg.Skip = opts.skip
	}
	if flags.Changed("continue-on-error") {
		cfg.ContinueOnError = opts.continueOnError
	}
	if flags.Changed("format") {
		cfg.Format = opts.format
	}
	if flags.Changed("min-size") {
		cfg.MinSize = opts.minSize
	}
	if flags.Changed("save") {
		cfg.OutputFile = opts.save
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"config":    opts.configPath,
		"workers":   cfg.Workers,
		"algorithm": cfg.Algorithm,
		"traversal": cfg.Traversal,
		"skip":      cfg.Skip,
	}).Debug("settings")

	return cfg, nil
}

func validateRoots(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("invalid path %s: %w", path, dirtree.ErrNotDirectory)
		}
	}
	return nil
}

// scanRoot builds the tree for one root and groups its files by content.
func scanRoot(ctx context.Context, opts *options, root string) (*dirtree.DirTree, *dedup.Result, error) {
	cfg := opts.cfg

	buildOpts := []dirtree.Option{
		dirtree.WithSkip(cfg.Skip),
		dirtree.WithWorkers(cfg.Workers),
	}
	if cfg.ContinueOnError {
		buildOpts = append(buildOpts, dirtree.WithContinueOnError())
	}

	build := dirtree.Build
	if cfg.Traversal == config.TraversalParallel {
		build = dirtree.BuildConcurrent
	}

	log.WithField("root", root).Info("scanning directory")

	tree, err := build(ctx, root, buildOpts...)
	if err != nil {
		return nil, nil, err
	}

	files := len(tree.Files())
	log.WithFields(log.Fields{
		"root":        tree.Root,
		"directories": len(tree.Directories),
		"files":       files,
	}).Info("hashing files")

	bar := progress.NewWithWriter(int64(files), os.Stderr,
		!opts.noProgress && cfg.Format == config.FormatText && progress.IsTerminal(os.Stderr))

	result, err := dedup.GroupByContent(ctx, tree, dedup.Options{
		Workers:         cfg.Workers,
		Algorithm:       cfg.HashAlgorithm(),
		ContinueOnError: cfg.ContinueOnError,
		Progress:        bar.Done,
	})
	if err != nil {
		return nil, nil, err
	}
	bar.Finish()

	if len(tree.Skipped) > 0 || len(result.Failures) > 0 {
		log.WithFields(log.Fields{
			"skipped_directories": len(tree.Skipped),
			"failed_files":        len(result.Failures),
		}).Warn("scan finished with unreadable entries")
	}

	return tree, result, nil
}

func runScan(ctx context.Context, opts *options, paths []string, out io.Writer) error {
	cfg := opts.cfg

	if err := validateRoots(paths); err != nil {
		return err
	}
	if cfg.OutputFile != "" && len(paths) > 1 {
		return errors.New("a snapshot can only be saved when scanning a single path")
	}

	minSize, err := cfg.MinSizeBytes()
	if err != nil {
		return err
	}

	scans := make([]*report.Scan, 0, len(paths))
	for _, path := range paths {
		start := time.Now()

		tree, result, err := scanRoot(ctx, opts, path)
		if err != nil {
			return err
		}

		scan, err := report.NewScan(tree, result, minSize)
		if err != nil {
			return err
		}
		scan.Elapsed = time.Since(start)
		scans = append(scans, scan)

		if cfg.OutputFile != "" {
			if err := saveSnapshot(tree, result, cfg.OutputFile); err != nil {
				return err
			}
		}
	}

	if cfg.Format == config.FormatJSON {
		return report.PrintJSON(scans, out)
	}
	return report.PrintText(scans, out)
}

func saveSnapshot(tree *dirtree.DirTree, result *dedup.Result, path string) error {
	snap, err := snapshot.New(tree, result)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}
	if err := snapshot.Save(snap, path); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	log.WithFields(log.Fields{
		"path":        path,
		"merkle_root": snap.MerkleRoot,
		"files":       len(snap.Files),
	}).Info("snapshot saved")
	return nil
}

func runCompare(ctx context.Context, opts *options, snapshotPath, directory string, out io.Writer) error {
	oldSnap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := validateRoots([]string{directory}); err != nil {
		return err
	}

	// fingerprints are only comparable under the same algorithm
	opts.cfg.Algorithm = string(oldSnap.Algorithm)
	if err := opts.cfg.Validate(); err != nil {
		return err
	}

	tree, result, err := scanRoot(ctx, opts, directory)
	if err != nil {
		return err
	}

	newSnap, err := snapshot.New(tree, result)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}

	diff, err := compare.Compare(oldSnap, newSnap)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, compare.FormatReport(diff))

	if diff.HasChanges() {
		return errChangesDetected
	}
	return nil
}
