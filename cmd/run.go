package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/model"
	"github.com/riq-labs/faculty-pipeline/internal/pipeline"
)

var (
	runInstitution string
	runResume      bool
	runClear       bool
	runPhases      []string
	runMaxQueries  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery pipeline for one institution",
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
		inst, ok := insts[runInstitution]
		if !ok {
			return eris.Errorf("unknown institution %q (known: %v)", runInstitution, config.InstitutionKeys(insts))
		}

		if runClear {
			if err := store.Clear(ctx, inst.Name); err != nil {
				return eris.Wrap(err, "clear checkpoints")
			}
			zap.L().Info("checkpoints cleared", zap.String("institution", inst.Name))
		}

		var only []model.PhaseID
		for _, name := range runPhases {
			only = append(only, model.PhaseID(name))
		}

		guards := newGuards()
		p, err := newPipeline(store, inst, guards)
		if err != nil {
			return err
		}

		result, err := p.Run(ctx, pipeline.Options{
			Resume:     runResume,
			Only:       only,
			MaxQueries: runMaxQueries,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("discovery complete",
			zap.String("institution", inst.Name),
			zap.Int("faculty", result.Metadata.TotalFaculty),
			zap.Int("websites", result.Metadata.WebsitesFound),
			zap.Int("emails", result.Metadata.EmailsFound),
			zap.Int("search_queries", result.Metadata.SearchQueriesUsed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Metadata)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInstitution, "institution", "", "institution key (required)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from the latest checkpoint")
	runCmd.Flags().BoolVar(&runClear, "clear", false, "clear existing checkpoints before running")
	runCmd.Flags().StringSliceVar(&runPhases, "phases", nil, "restrict to these phases (default all)")
	runCmd.Flags().IntVar(&runMaxQueries, "max-queries", 0, "cap on website-search queries (0 = default budget)")
	_ = runCmd.MarkFlagRequired("institution")
	rootCmd.AddCommand(runCmd)
}
