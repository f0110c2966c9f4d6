/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/signalcast/internal/db"
	"github.com/friendsincode/signalcast/internal/schedule"
)

var (
	exportFormat string
	exportFrom   string
	exportTo     string
	exportOut    string
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Inspect and export the broadcast schedule",
}

var schedulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export schedules as YAML or iCal",
	Long: `Export scheduled broadcasts in a date range.

Examples:
  # Export the next 7 days as YAML to stdout
  signalcast schedules export

  # Export a specific range as an iCal feed
  signalcast schedules export --format ical --from 2026-09-01 --to 2026-09-30 -o schedule.ics
`,
	RunE: runSchedulesExport,
}

func init() {
	schedulesExportCmd.Flags().StringVar(&exportFormat, "format", schedule.ExportFormatYAML, "Output format: yaml or ical")
	schedulesExportCmd.Flags().StringVar(&exportFrom, "from", "", "Range start date (YYYY-MM-DD, default today)")
	schedulesExportCmd.Flags().StringVar(&exportTo, "to", "", "Range end date (YYYY-MM-DD, default 7 days from start)")
	schedulesExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stdout)")
	schedulesCmd.AddCommand(schedulesExportCmd)
	rootCmd.AddCommand(schedulesCmd)
}

func runSchedulesExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	if exportFrom != "" {
		var err error
		start, err = time.Parse("2006-01-02", exportFrom)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
	}

	end := start.Add(7 * 24 * time.Hour)
	if exportTo != "" {
		var err error
		end, err = time.Parse("2006-01-02", exportTo)
		if err != nil {
			return fmt.Errorf("invalid --to date: %w", err)
		}
	}
	if !end.After(start) {
		return fmt.Errorf("--to must be after --from")
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	svc := schedule.NewExportService(database, logger)
	res, err := svc.Export(cmd.Context(), exportFormat, start, end)
	if err != nil {
		return err
	}

	if exportOut == "" {
		_, err = os.Stdout.Write(res.Data)
		return err
	}
	if err := os.WriteFile(exportOut, res.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", exportOut, len(res.Data))
	return nil
}
