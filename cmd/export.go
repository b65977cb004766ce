package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/stats"
)

var (
	exportFormat    string
	exportDetailed  bool
	exportNotesOnly bool
	exportFrom      string
	exportTo        string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked time as CSV, JSON or an Excel workbook",
	Long: `Export tracked time. Archived projects are always included.
CSV and JSON go to stdout unless --out is given; xlsx defaults to a file
named after today's date.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json, xlsx")
	exportCmd.Flags().BoolVar(&exportDetailed, "detailed", false, "One CSV row per quarter hour instead of per project and day")
	exportCmd.Flags().BoolVar(&exportNotesOnly, "notes-only", false, "Only quarter hours with a note (implies --detailed)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First day (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last day (YYYY-MM-DD)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to FILE; - for stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "csv", "json", "xlsx":
	default:
		return usageErrorf("unknown format %q", exportFormat)
	}
	if err := dateRange(exportFrom, exportTo); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.slots.LoadRange(cmd.Context(), exportFrom, exportTo); err != nil {
		return storeError(err)
	}
	slots := s.slots.All()
	all := s.projects.All()
	f := stats.Filter{From: exportFrom, To: exportTo, IncludeArchived: true}
	detailed := exportDetailed || exportNotesOnly
	t := now()

	var (
		buf  bytes.Buffer
		kind = "summary"
	)
	switch exportFormat {
	case "json":
		kind = "detailed"
		err = stats.WriteJSON(&buf, stats.DetailedRows(all, slots, f, exportNotesOnly), t)
	case "xlsx":
		kind = "report"
		err = stats.WriteXLSX(&buf, stats.SummaryRows(all, slots, f), stats.DetailedRows(all, slots, f, exportNotesOnly))
	default:
		if detailed {
			kind = "detailed"
			err = stats.WriteDetailedCSV(&buf, stats.DetailedRows(all, slots, f, exportNotesOnly))
		} else {
			err = stats.WriteSummaryCSV(&buf, stats.SummaryRows(all, slots, f))
		}
	}
	if err != nil {
		return err
	}

	path := exportOut
	if path == "" && exportFormat == "xlsx" {
		path = stats.FileName(kind, exportFormat, t)
	}
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return storeError(fmt.Errorf("writing %s: %w", path, err))
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return storeError(err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d quarter hours to %s\n", s.slots.Len(), path)
	return nil
}
