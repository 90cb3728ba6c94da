package main

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/entity-verify/internal/model"
)

var (
	importCSVPath string
	importTable   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import entity names from CSV into the catalog",
	Long:  "Reads one entity name per row (first column) and upserts them as unverified catalog entries, skipping names already present.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		table := model.TableType(importTable)
		if !table.Valid() {
			return eris.Errorf("unknown table type: %s", importTable)
		}
		entityType := model.EntityTypeCharacter
		if table == model.TableCreators {
			entityType = model.EntityTypeCreator
		}

		names, err := readNamesCSV(importCSVPath)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return eris.Errorf("no names found in %s", importCSVPath)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		imported, err := st.ImportEntities(ctx, table, entityType, names)
		if err != nil {
			return eris.Wrap(err, "import entities")
		}

		zap.L().Info("import complete",
			zap.Int64("imported", imported),
			zap.Int("rows", len(names)),
			zap.String("table", string(table)),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// readNamesCSV reads the first column of each row, skipping blanks and
// an optional "name" header.
func readNamesCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var names []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv")
		}
		if len(record) == 0 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if name == "" || strings.EqualFold(name, "name") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	importCmd.Flags().StringVar(&importTable, "table", "characters", "table type (characters or creators)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
