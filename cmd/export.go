package main

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/model"
)

var (
	exportInstitution string
	exportFormat      string
	exportOutput      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest completed run as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		insts, err := loadInstitutions()
		if err != nil {
			return eris.Wrap(err, "load institutions")
		}
		inst, ok := insts[exportInstitution]
		if !ok {
			return eris.Errorf("unknown institution %q", exportInstitution)
		}

		result, err := store.LoadFinal(ctx, inst.Name)
		if err != nil {
			return eris.Wrap(err, "load result")
		}
		if result == nil {
			return eris.Errorf("no completed run for %s", inst.Name)
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return eris.Wrap(err, "encode json")
			}
		case "csv":
			if err := writeCSV(out, result.Faculty); err != nil {
				return err
			}
		default:
			return eris.Errorf("unsupported format: %s", exportFormat)
		}

		if exportOutput != "" {
			zap.L().Info("export written",
				zap.String("path", exportOutput),
				zap.Int("faculty", len(result.Faculty)))
		}
		return nil
	},
}

var csvHeader = []string{
	"name", "h_index", "works_count", "cited_by_count",
	"email", "email_source", "email_confidence", "email_method",
	"website", "website_source", "website_confidence", "website_type",
	"fields", "research_topics", "orcid", "openalex_id",
}

func writeCSV(w io.Writer, faculty []model.FacultyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for i := range faculty {
		f := &faculty[i]
		topics := make([]string, 0, 5)
		for _, t := range f.Research.Topics {
			if len(topics) == 5 {
				break
			}
			topics = append(topics, t.Name)
		}
		row := []string{
			f.DisplayName,
			strconv.Itoa(f.HIndex),
			strconv.Itoa(f.WorksCount),
			strconv.Itoa(f.CitedByCount),
			f.Email.Value,
			string(f.Email.Source),
			string(f.Email.Confidence),
			f.Email.ExtractionMethod,
			f.Website.Value,
			string(f.Website.Source),
			string(f.Website.Confidence),
			string(f.Website.PageType),
			strings.Join(f.Research.Fields, "; "),
			strings.Join(topics, "; "),
			f.ORCID,
			f.ID,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush csv")
}

func init() {
	exportCmd.Flags().StringVar(&exportInstitution, "institution", "", "institution key (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json or csv")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output path (default stdout)")
	_ = exportCmd.MarkFlagRequired("institution")
	rootCmd.AddCommand(exportCmd)
}
