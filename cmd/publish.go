package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/archive"
	"github.com/suyaash/batchrec/internal/sheets"
)

func newPublishCmd() *cobra.Command {
	var (
		archivePath string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish archived snapshots to the spreadsheet web app",
		Long: `Reads snapshots written by "batchrec extract --archive" and posts each one to
the spreadsheet web app, in archive order. A failed post does not stop the rest.`,
		Example: `  batchrec publish --archive batch-42.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archivePath == "" {
				return errors.New("--archive is required")
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireSheet(); err != nil {
				return err
			}
			publisher, err := sheets.NewPublisher(cfg.Sheet.WebhookURL, cfg.Sheet.Timeout, logger)
			if err != nil {
				return err
			}

			entries, err := archive.ReadFile(archivePath)
			if err != nil {
				return err
			}
			logger.Info("Loaded archive", "path", archivePath, "entries", len(entries))

			results := make([]FileResult, 0, len(entries))
			failed := 0
			for _, e := range entries {
				snap := e.Snapshot
				r := FileResult{ID: e.FileID, File: e.File, Snapshot: &snap}
				ack, err := publisher.Publish(cmd.Context(), snap)
				if err != nil {
					d := apperr.DetailOf(err)
					r.Error = &d
					failed++
				} else {
					r.Published = ack
				}
				results = append(results, r)
			}

			if err := writeResults(cmd.OutOrStdout(), format, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d snapshots failed to publish", failed, len(entries))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "Parquet archive written by extract (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json or yaml)")
	cmd.Flags().String("webhook-url", "", "Spreadsheet web app URL")

	return cmd
}
