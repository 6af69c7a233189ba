package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/split-budget/internal/app"
	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/split-budget/internal/domain/import/service"
)

func newImportCmd(c *cli) *cobra.Command {
	var (
		email, file, locale, dateOrder string
		dryRun                         bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV or XLSX bank statement into an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := importservice.DefaultOptions()
			l, err := parser.ParseLocale(locale)
			if err != nil {
				return err
			}
			opts.Locale = l
			switch parser.DateOrder(dateOrder) {
			case "":
			case parser.DayFirst, parser.MonthFirst:
				opts.DateOrder = parser.DateOrder(dateOrder)
			default:
				return fmt.Errorf("--date-order must be %s or %s", parser.DayFirst, parser.MonthFirst)
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open statement: %w", err)
			}
			defer f.Close()

			return c.withDeps(func(deps *app.Dependencies) error {
				ctx := cmd.Context()
				user, err := lookupUser(ctx, deps, email)
				if err != nil {
					return err
				}

				upload := importservice.Upload{Name: filepath.Base(file), Reader: f}
				run := deps.ImportService.ImportStatement
				if dryRun {
					run = deps.ImportService.DryRun
				}
				report, err := run(ctx, user.ID, upload, opts)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report, dryRun)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&file, "file", "", "statement file (.csv or .xlsx)")
	cmd.Flags().StringVar(&locale, "locale", "", "amount format: auto, dot or comma, detected when empty")
	cmd.Flags().StringVar(&dateOrder, "date-order", "", "day_first or month_first, detected when empty")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without storing anything")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printReport(w io.Writer, r *importservice.Report, dryRun bool) {
	verb := "imported"
	if dryRun {
		verb = "would import"
	}
	fmt.Fprintf(w, "%s: %s %d of %d rows (%d duplicate, %d failed, %d skipped)\n",
		r.FileName, verb, r.RowsImported, r.RowsTotal, r.RowsDuplicate, r.RowsFailed, r.RowsSkipped)
	fmt.Fprintf(w, "layout: %s, locale %s, header row %d\n", r.FileType, r.Locale, r.HeaderRow)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}
