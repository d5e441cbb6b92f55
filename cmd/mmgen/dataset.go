package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jordanhubbard/mmgen/internal/database"
	"github.com/jordanhubbard/mmgen/internal/dataset"
)

func newMergeCommand() *cobra.Command {
	var output, remainder string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Fold a remainder checkpoint into the output dataset",
		Example: `  mmgen merge
  mmgen merge --output outputs/atl.json --remainder outputs/atl_remainder.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("output") {
				output = cfg.Generation.OutputFile
			}
			if !cmd.Flags().Changed("remainder") {
				remainder = cfg.Generation.RemainderFile
			}
			n, err := dataset.MergeFiles(output, remainder)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %s into %s: %d records\n", remainder, output, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output dataset file")
	cmd.Flags().StringVar(&remainder, "remainder", "", "Remainder checkpoint file")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "validate FILE...",
		Short:   "Check dataset files against the record schema",
		Args:    cobra.MinimumNArgs(1),
		Example: `  mmgen validate outputs/emf_multi_250_dataset.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := dataset.ValidateFile(path); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: invalid: %v\n", path, err)
					failed++
					continue
				}
				records, _ := dataset.ReadFile(path)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d records)\n", path, len(records))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	var dsn, table, runID string
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Copy dataset records into PostgreSQL",
		Args:  cobra.ExactArgs(1),
		Example: `  mmgen export outputs/emf_multi_250_dataset.json --dsn "postgres://mmgen@localhost/mmgen?sslmode=disable"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("dsn") {
				dsn = cfg.Export.DSN
			}
			if !cmd.Flags().Changed("table") {
				table = cfg.Export.Table
			}
			if dsn == "" {
				return fmt.Errorf("no database configured: set export.dsn or --dsn")
			}
			if runID == "" {
				runID = uuid.New().String()
			}

			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			records, err := dataset.ReadFile(args[0])
			if err != nil {
				return err
			}

			db, err := database.NewPostgres(cmd.Context(), dsn, table)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Export(cmd.Context(), runID, records)
			if err != nil {
				return err
			}
			total, err := db.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d new of %d records (table now holds %d)\n", n, len(records), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	cmd.Flags().StringVar(&table, "table", "", "Destination table")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id stored with the records (default a new UUID)")
	return cmd
}
