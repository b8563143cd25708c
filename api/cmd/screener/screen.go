package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/export"
	"photo-screener/api/internal/gateway"
	"photo-screener/api/internal/orchestrator"
	"photo-screener/api/internal/screen"
	"photo-screener/api/internal/screen/gemini"
	"photo-screener/api/internal/store"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

func (c *cli) screenCmd() *cobra.Command {
	var (
		outDir      string
		local       bool
		url         string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "screen <dir>",
		Short: "Screen every image in a directory and export the passed ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := c.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			var analyzer orchestrator.Analyzer
			if local {
				la := &localAnalyzer{
					analyzer: screen.NewAnalyzer(gemini.New(c.cfg.GeminiAPIKey), c.cfg.GeminiModels, c.logger),
					logger:   c.logger,
				}
				if repo := b.Screenings(); repo != nil {
					la.audit = repo
				}
				analyzer = la
			} else {
				if url == "" {
					url = c.cfg.AnalyzeURL
				}
				analyzer = gateway.New(url, c.cfg.APIKey, c.cfg.RequestTimeout)
			}
			if concurrency <= 0 {
				concurrency = c.cfg.ScreenConcurrency
			}

			ws := orchestrator.New(analyzer, b.Criteria,
				orchestrator.Options{Concurrency: concurrency, MaxDimension: c.cfg.MaxImageDimension}, c.logger)

			n, err := addDir(ws, args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("no images found in %s", args[0])
			}

			out := cmd.OutOrStdout()
			unsub := ws.Subscribe(progress(out))
			rep, err := ws.RunPending(ctx)
			unsub()
			if err != nil {
				return err
			}
			if err := printReport(out, ws.List(), rep); err != nil {
				return err
			}
			if outDir == "" {
				return nil
			}
			composer := export.NewComposer(4, time.Hour, c.logger)
			return exportPassed(ctx, out, ws, composer, export.ParseSources(c.cfg.LogoSources, 10*time.Second), outDir)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Export passed photos into this directory")
	cmd.Flags().BoolVar(&local, "local", false, "Call Gemini directly instead of the analysis gateway")
	cmd.Flags().StringVar(&url, "url", "", "Analysis gateway URL (default ANALYZE_URL)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent analyses (default SCREEN_CONCURRENCY)")
	return cmd
}

func addDir(ws *orchestrator.Workspace, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		if _, err := ws.Add(e.Name(), data, ""); err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", e.Name(), err)
			continue
		}
		n++
	}
	return n, nil
}

func progress(out io.Writer) func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		if ev.Type != orchestrator.EventUpdated || ev.Photo == nil {
			return
		}
		switch ev.Photo.Status {
		case orchestrator.StatusPass, orchestrator.StatusFail, orchestrator.StatusError:
			fmt.Fprintf(out, "%-5s %s\n", ev.Photo.Status, ev.Photo.Filename)
		}
	}
}

func printReport(out io.Writer, photos []orchestrator.Photo, rep orchestrator.BatchReport) error {
	fmt.Fprintf(out, "\nprocessed %d: %d passed, %d failed, %d errors\n\n",
		rep.Processed, rep.Passed, rep.Failed, rep.Errored)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tDETAILS")
	for _, p := range photos {
		details := p.Feedback
		if len(p.Reasons) > 0 {
			details = strings.Join(p.Reasons, "; ")
		}
		if p.Error != "" {
			details = p.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Filename, p.Status, details)
	}
	return tw.Flush()
}

func exportPassed(ctx context.Context, out io.Writer, ws *orchestrator.Workspace, composer *export.Composer, logos []export.LogoSource, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	used := make(map[string]bool)
	for _, p := range ws.List() {
		if p.Status != orchestrator.StatusPass {
			continue
		}
		data, warning := composer.ComposeOrOriginal(ctx, p.Data, logos)
		name := export.FileName(p.Filename)
		if warning != "" {
			name = p.Filename
			fmt.Fprintf(out, "warning: %s: %s\n", p.Filename, warning)
		}
		name = uniqueName(name, used)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %s\n", filepath.Join(dir, name))
	}
	return nil
}

// uniqueName добавляет _2, _3... если имя уже занято в этом прогоне (a.jpg и a.png).
func uniqueName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	out := name
	for i := 2; used[out]; i++ {
		out = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	used[out] = true
	return out
}

// localAnalyzer вызывает модель в процессе и пишет вердикт в журнал, если он есть.
type localAnalyzer struct {
	analyzer *screen.Analyzer
	audit    *store.ScreeningRepo
	logger   *zap.Logger
}

func (a *localAnalyzer) Analyze(ctx context.Context, imageBase64, mime string, set criteria.Set) (screen.Result, error) {
	image, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return screen.Result{}, fmt.Errorf("decode image: %w", err)
	}
	res, model, err := a.analyzer.Analyze(ctx, image, mime, set)
	if err != nil {
		return screen.Result{}, err
	}
	if a.audit != nil {
		if err := a.audit.Record(ctx, image, model, set, res); err != nil {
			a.logger.Warn("audit record failed", zap.Error(err))
		}
	}
	return res, nil
}
