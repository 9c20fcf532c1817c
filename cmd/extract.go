package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/archive"
	"github.com/suyaash/batchrec/internal/config"
	"github.com/suyaash/batchrec/internal/extraction"
	"github.com/suyaash/batchrec/internal/ingest"
	"github.com/suyaash/batchrec/internal/models"
	"github.com/suyaash/batchrec/internal/ocr"
	"github.com/suyaash/batchrec/internal/pipeline"
	"github.com/suyaash/batchrec/internal/sheets"
	"github.com/suyaash/batchrec/internal/store"
)

// FileResult is the outcome for one command-line file.
type FileResult struct {
	ID        string              `json:"id,omitempty" yaml:"id,omitempty"`
	File      string              `json:"file" yaml:"file"`
	Category  models.Category     `json:"category,omitempty" yaml:"category,omitempty"`
	Phase     models.Phase        `json:"phase,omitempty" yaml:"phase,omitempty"`
	Snapshot  *models.Snapshot    `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Error     *models.ErrorDetail `json:"error,omitempty" yaml:"error,omitempty"`
	Published sheets.Ack          `json:"published,omitempty" yaml:"published,omitempty"`
}

func newExtractCmd() *cobra.Command {
	var (
		format      string
		archivePath string
		publish     bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "extract <files...>",
		Short: "Extract structured records from local batch-record images",
		Long: `Reads each image with the configured OCR provider, extracts its structured
records and prints the results. Documents are listed but not processed.

Results can be archived to a Parquet file and published to the spreadsheet web app.`,
		Example: `  # Print records as YAML
  batchrec extract page1.png page2.jpg --format yaml

  # Archive a folder of scans and publish each page
  batchrec extract scans/*.png --archive batch-42.parquet --publish --concurrency 4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}
			if concurrency < 1 {
				concurrency = 1
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			recognizer, err := ocr.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			extractor, err := extraction.New(cfg, logger)
			if err != nil {
				return err
			}
			var publisher *sheets.Publisher
			if publish {
				if err := cfg.RequireSheet(); err != nil {
					return err
				}
				publisher, err = sheets.NewPublisher(cfg.Sheet.WebhookURL, cfg.Sheet.Timeout, logger)
				if err != nil {
					return err
				}
			}

			results, err := runExtraction(cmd.Context(), cfg, logger, recognizer, extractor, args, concurrency)
			if err != nil {
				return err
			}

			if archivePath != "" {
				if err := archive.WriteFile(archivePath, entriesOf(results)); err != nil {
					return err
				}
				logger.Info("Archived results", "path", archivePath)
			}

			if publisher != nil {
				for i := range results {
					if results[i].Snapshot == nil {
						continue
					}
					ack, err := publisher.Publish(cmd.Context(), *results[i].Snapshot)
					if err != nil {
						d := apperr.DetailOf(err)
						results[i].Error = &d
						continue
					}
					results[i].Published = ack
				}
			}

			if err := writeResults(cmd.OutOrStdout(), format, results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Error != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json or yaml)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "Write extracted snapshots to this Parquet file")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish each extracted snapshot to the spreadsheet web app")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "Number of files processed at once")
	cmd.Flags().String("webhook-url", "", "Spreadsheet web app URL")
	addProviderFlags(cmd)

	return cmd
}

func runExtraction(ctx context.Context, cfg *config.Config, logger *slog.Logger, rec pipeline.Recognizer, ext pipeline.Extractor, paths []string, concurrency int) ([]FileResult, error) {
	ingestor := ingest.New(cfg.Upload.MaxBytes, nil,
		ingest.WithAllowedTypes(cfg.Upload.AllowedTypes),
		ingest.WithLogger(logger),
	)

	// results follows argument order; accepted[i] is nil for a rejected path.
	results := make([]FileResult, len(paths))
	accepted := make([]*models.UploadedFile, len(paths))
	for i, path := range paths {
		raw := ingest.FromPath(path)
		files, errs := ingestor.Ingest([]ingest.RawFile{raw})
		if len(errs) > 0 {
			d := apperr.DetailOf(errs[0])
			results[i] = FileResult{File: raw.Name, Error: &d}
			continue
		}
		accepted[i] = files[0]
	}

	p := pipeline.New(rec, ext, pipeline.WithLogger(logger))
	defer p.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, f := range accepted {
		if f == nil {
			continue
		}
		p.Register(f)
		results[i] = FileResult{ID: f.ID, File: f.Name, Category: f.Category}
		if !f.IsImage() {
			results[i].Phase = models.PhaseNotStarted
			continue
		}

		g.Go(func() error {
			if _, err := p.RequestExtraction(f.ID); err != nil {
				return err
			}
			st, err := p.Wait(gctx, f.ID)
			if err != nil {
				return err
			}
			results[i].Phase = st.Phase
			switch st.Phase {
			case models.PhaseReady:
				ds := store.New()
				ds.Load(st.Records)
				snap := ds.Serialize()
				results[i].Snapshot = &snap
			case models.PhaseFailed:
				results[i].Error = st.Error
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func entriesOf(results []FileResult) []archive.Entry {
	var entries []archive.Entry
	for _, r := range results {
		if r.Snapshot != nil {
			entries = append(entries, archive.Entry{FileID: r.ID, File: r.File, Snapshot: *r.Snapshot})
		}
	}
	return entries
}

func writeResults(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
