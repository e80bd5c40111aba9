package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"report"},
		Short:   "Record and inspect submitted expense reports",
		Long: `Record submitted expense reports so the engine can learn from them,
and inspect what has been recorded.`,
	}

	cmd.AddCommand(reportsAddCmd())
	cmd.AddCommand(reportsListCmd())
	cmd.AddCommand(reportsShowCmd())

	return cmd
}

// reportFile is the JSON shape accepted by "reports add".
type reportFile struct {
	ReportDate string `json:"report_date"`
	Lines      []struct {
		TransactionID  string          `json:"transaction_id"`
		VendorText     string          `json:"vendor_text"`
		CategoryCode   string          `json:"category_code"`
		DepartmentCode string          `json:"department_code"`
		Amount         decimal.Decimal `json:"amount"`
	} `json:"lines"`
}

func reportsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <file.json>",
		Short: "Record a submitted expense report from a JSON file",
		Long: `Record a submitted expense report. The file carries the report date and
its lines:

  {
    "report_date": "2026-01-31",
    "lines": [
      {"transaction_id": "TX1", "vendor_text": "Lyft", "category_code": "TRAVEL",
       "department_code": "ENG", "amount": "23.50"}
    ]
  }

Lines that reference an imported transaction may omit vendor_text; it is
filled from the stored transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read report file: %w", err)
			}

			var file reportFile
			if err := json.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse report file: %w", err)
			}
			if len(file.Lines) == 0 {
				return fmt.Errorf("report file has no lines")
			}

			reportDate, err := time.Parse("2006-01-02", file.ReportDate)
			if err != nil {
				return fmt.Errorf("invalid report_date %q: %w", file.ReportDate, err)
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			lines := make([]model.ReportLine, 0, len(file.Lines))
			for i, l := range file.Lines {
				vendorText := l.VendorText
				if vendorText == "" && l.TransactionID != "" {
					txn, err := db.GetTransactionByID(ctx, owner, l.TransactionID)
					if err != nil {
						return fmt.Errorf("line %d: failed to resolve transaction %q: %w", i+1, l.TransactionID, err)
					}
					vendorText = txn.VendorText()
				}
				lines = append(lines, model.ReportLine{
					TransactionID:  l.TransactionID,
					VendorText:     vendorText,
					CategoryCode:   l.CategoryCode,
					DepartmentCode: l.DepartmentCode,
					Amount:         l.Amount,
				})
			}

			report := &model.ExpenseReport{
				OwnerID:    owner,
				ReportDate: reportDate,
			}
			if err := db.SaveReport(ctx, report, lines); err != nil {
				return fmt.Errorf("failed to save report: %w", err)
			}

			slog.Info("Recorded expense report",
				"report_id", report.ID,
				"report_date", file.ReportDate,
				"lines", len(lines))
			fmt.Printf("Recorded report %d (%d lines). Run 'augur learn %d' to update patterns.\n",
				report.ID, len(lines), report.ID)
			return nil
		},
	}
}

func reportsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded expense reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			ids, err := db.GetReportIDs(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}
			if len(ids) == 0 {
				slog.Info("No reports recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tREPORT DATE\tLINES")
			_, _ = fmt.Fprintln(w, "──\t───────────\t─────")
			for _, id := range ids {
				report, err := db.GetReport(ctx, owner, id)
				if err != nil {
					return err
				}
				lines, err := db.GetReportLines(ctx, owner, id)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%d\n",
					report.ID, report.ReportDate.Format("2006-01-02"), len(lines))
			}
			return w.Flush()
		},
	}
}

func reportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show the lines of one recorded report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			reportID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report ID %q: %w", args[0], err)
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := db.GetReport(ctx, owner, reportID)
			if err != nil {
				return fmt.Errorf("failed to load report: %w", err)
			}
			lines, err := db.GetReportLines(ctx, owner, reportID)
			if err != nil {
				return fmt.Errorf("failed to load report lines: %w", err)
			}

			fmt.Printf("Report %d, submitted %s\n\n", report.ID, report.ReportDate.Format("2006-01-02"))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "VENDOR\tAMOUNT\tCATEGORY\tDEPARTMENT\tTRANSACTION")
			for _, line := range lines {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					truncateString(line.VendorText, 30),
					line.Amount.StringFixed(2),
					line.CategoryCode,
					line.DepartmentCode,
					line.TransactionID)
			}
			return w.Flush()
		},
	}
}
