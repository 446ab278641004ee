package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/cmd/vigil/tui"
	"github.com/jamesainslie/vigil/pkg/vigil/config"
	"github.com/jamesainslie/vigil/pkg/vigil/digest"
	"github.com/jamesainslie/vigil/pkg/vigil/history"
	"github.com/jamesainslie/vigil/pkg/vigil/logging"
	"github.com/jamesainslie/vigil/pkg/vigil/manifest"
	"github.com/jamesainslie/vigil/pkg/vigil/metrics"
	"github.com/jamesainslie/vigil/pkg/vigil/reconciler"
	"github.com/jamesainslie/vigil/pkg/vigil/report"
	"github.com/jamesainslie/vigil/pkg/vigil/tuner"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
	"github.com/jamesainslie/vigil/pkg/vigil/walker"
)

// engine wires one configured run of the reconciler.
type engine struct {
	cfg   *config.Config
	store *manifest.Store
	obs   types.Observer
	log   *logging.Logger

	stdout io.Writer
	now    func() time.Time
}

func newEngine(c *config.Config) (*engine, error) {
	obs := logging.NewObserver(logging.Get("reconciler"))
	store, err := manifest.NewStore(c.Manifest.Path, manifest.StoreOptions{
		BackupSuffix: c.Manifest.BackupSuffix,
		Observer:     logging.NewObserver(logging.Get("manifest")),
	})
	if err != nil {
		return nil, err
	}
	return &engine{
		cfg:    c,
		store:  store,
		obs:    obs,
		log:    logging.Get("cli"),
		stdout: os.Stdout,
		now:    time.Now,
	}, nil
}

// reconciler builds a Reconciler reporting to the log and to progress.
func (e *engine) reconciler(progress types.Observer) (*reconciler.Reconciler, error) {
	chunk, err := e.cfg.ChunkSize()
	if err != nil {
		return nil, err
	}
	policy, err := walker.ParseSymlinkPolicy(e.cfg.Walker.Symlinks)
	if err != nil {
		return nil, err
	}

	tuned := tuner.Auto(e.cfg.Workers)
	w, err := walker.New(walker.Options{
		Symlinks:     policy,
		Exclude:      e.cfg.Walker.Exclude,
		IgnoreFile:   e.cfg.Walker.IgnoreFile,
		ExcludePaths: e.store.ReservedPaths(),
		ExcludeNames: e.store.TempPatterns(),
		Workers:      tuned.WalkWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid walker settings: %w", err)
	}

	obs := e.obs
	if progress != nil {
		obs = types.MultiObserver{e.obs, progress}
	}

	e.log.Debug("engine configured",
		"hash_workers", tuned.HashWorkers,
		"walk_workers", tuned.WalkWorkers,
		"buffer", tuned.ResultBuffer,
		"chunk_size", chunk,
		"symlinks", string(policy),
	)

	return reconciler.New(reconciler.Options{
		Store:    e.store,
		Digester: digest.New(digest.Options{ChunkSize: chunk}),
		Walker:   w,
		Workers:  tuned.HashWorkers,
		Buffer:   tuned.ResultBuffer,
		Observer: obs,
	})
}

// outcome is the result of one command run.
type outcome struct {
	report *report.Report
	clean  bool
}

// execute runs name against root, with the progress view when the
// terminal allows it.
func (e *engine) execute(ctx context.Context, cmd *cobra.Command, name report.Command, root string) (*outcome, error) {
	var out *outcome
	op := func(ctx context.Context, progress types.Observer) error {
		rec, err := e.reconciler(progress)
		if err != nil {
			return err
		}
		out, err = e.invoke(ctx, rec, name, root)
		return err
	}

	if progressEnabled(cmd) {
		err := tui.Run(ctx, string(name), os.Stderr, op)
		return out, err
	}
	return out, op(ctx, nil)
}

func (e *engine) invoke(ctx context.Context, rec *reconciler.Reconciler, name report.Command, root string) (*outcome, error) {
	if name == report.CommandCheck {
		res, err := rec.Verify(ctx, root)
		if err != nil {
			return nil, err
		}
		return &outcome{
			report: report.FromVerify(res),
			clean:  res.Clean(e.cfg.Report.Strict),
		}, nil
	}

	res, err := rec.Update(ctx, root)
	if err != nil {
		return nil, err
	}
	return &outcome{
		report: report.FromSnapshot(name, e.store.Location(), res),
		clean:  true,
	}, nil
}

// run executes a manifest command end to end: the operation, its output,
// the history record and the metrics file.
func run(cmd *cobra.Command, name report.Command, root string, reportFile string) error {
	c := currentConfig()
	// Reject an unknown format before any work is done or saved.
	if _, err := report.Get(c.Report.Format); err != nil {
		return err
	}
	e, err := newEngine(c)
	if err != nil {
		return err
	}

	e.stdout = cmd.OutOrStdout()

	started := e.now()
	e.log.Info("run started", "command", string(name), "root", root, "manifest", e.store.Location())

	out, runErr := e.execute(cmd.Context(), cmd, name, root)
	if runErr != nil {
		e.log.Error("run failed", "command", string(name), "root", root, "error", runErr)
	} else {
		e.log.Info("run finished",
			"command", string(name),
			"root", out.report.Root,
			"modified", out.report.ModifiedCount(),
			"duration", out.report.Duration,
		)
	}

	// Failures carry the normalized root, as completed runs do.
	rootID := root
	if id, err := digest.NormalizePath(root); err == nil {
		rootID = id
	}
	e.recordHistory(name, rootID, started, out, runErr)
	e.writeMetrics(name, rootID, out, runErr)

	if runErr != nil {
		return runErr
	}

	if err := e.writeReport(out.report, e.cfg.Report.Format, e.stdout); err != nil {
		return err
	}
	if reportFile != "" {
		if err := e.writeReportFile(out.report, reportFile); err != nil {
			return err
		}
		printInfo(cmd, "Report written to %s", reportFile)
	}

	if !out.clean {
		return errChangesDetected
	}
	return nil
}

func (e *engine) writeReport(r *report.Report, format string, w io.Writer) error {
	f, err := report.Get(format)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// writeReportFile writes the text report to path.
func (e *engine) writeReportFile(r *report.Report, path string) error {
	path, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := e.writeReport(r, report.DefaultFormat, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// recordHistory appends the run to the history database. Failures are
// logged and never change the command's result.
func (e *engine) recordHistory(name report.Command, root string, started time.Time, out *outcome, runErr error) {
	if !e.cfg.History.Enabled {
		return
	}

	store, err := history.Open(e.cfg.HistoryPath())
	if err != nil {
		e.log.Warn("history unavailable", "path", e.cfg.HistoryPath(), "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	var rec history.Record
	if runErr != nil {
		rec = history.Failed(name, root, e.store.Location(), started, runErr)
		rec.Duration = e.now().Sub(started)
	} else {
		rec = history.FromReport(out.report)
	}

	saved, err := store.Append(rec)
	if err != nil {
		e.log.Warn("failed to record history", "error", err)
		return
	}
	e.log.Debug("history recorded", "id", saved.ID)

	if days := e.cfg.History.RetentionDays; days > 0 {
		n, err := store.Clean(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			e.log.Warn("history cleanup failed", "error", err)
		} else if n > 0 {
			e.log.Debug("history cleaned", "removed", n)
		}
	}
}

// writeMetrics writes the Prometheus textfile when metrics.file is set.
func (e *engine) writeMetrics(name report.Command, root string, out *outcome, runErr error) {
	if e.cfg.Metrics.File == "" {
		return
	}

	m := metrics.New()
	if runErr != nil {
		m.ObserveFailure(name, root)
	} else {
		m.Observe(out.report)
	}
	if err := m.WriteTextfile(e.cfg.Metrics.File); err != nil {
		e.log.Warn("failed to write metrics", "path", e.cfg.Metrics.File, "error", err)
	}
}
