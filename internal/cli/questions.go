package cli

import (
	"context"
	"fmt"

	"datalab-quiz-service/internal/config"
	"datalab-quiz-service/internal/infra/postgres"
	"datalab-quiz-service/internal/questionbank"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewQuestionsCmd groups the question catalog tools.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect and publish the question catalog",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "catalog YAML (default: questions.path or the built-in catalog)")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check every level has enough well-formed questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := catalogLoader(*configPath, file)
			if err != nil {
				return err
			}
			if err := loader.Validate(); err != nil {
				return err
			}
			all, err := loader.All()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d questions\n", len(all))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Validate the catalog and upsert it into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return importQuestions(cmd.Context(), *configPath, file)
		},
	})
	return cmd
}

func catalogLoader(configPath, file string) (*questionbank.YAMLLoader, error) {
	if file != "" {
		return questionbank.NewYAMLLoader(file), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return questionbank.NewYAMLLoader(cfg.Questions.Path), nil
}

func importQuestions(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if file == "" {
		file = cfg.Questions.Path
	}
	loader := questionbank.NewYAMLLoader(file)
	if err := loader.Validate(); err != nil {
		return err
	}
	all, err := loader.All()
	if err != nil {
		return err
	}

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres.URL, postgres.PoolConfig{MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewQuestionLoader(pool, postgres.NewTransactor(pool)).Import(ctx, all); err != nil {
		return err
	}
	log.Info("questions imported", zap.Int("count", len(all)))
	return nil
}
