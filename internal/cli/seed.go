package cli

import (
	"fmt"
	"os"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/postgres"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewSeedCmd imports questions into the Postgres catalog.
func NewSeedCmd() *cobra.Command {
	var (
		file       string
		clearFirst bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import trivia questions from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if file == "" && !clearFirst {
				return fmt.Errorf("--file is required unless --clear is given")
			}

			var questions []domain.Question
			if file != "" {
				questions, err = loadQuestionFile(file)
				if err != nil {
					return err
				}
			}

			if err := runMigrations(cmd.Context(), cfg); err != nil {
				return err
			}
			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()

			n, err := postgres.SeedQuestions(cmd.Context(), db, questions, clearFirst)
			if err != nil {
				return err
			}
			log.Info().Int("questions", n).Bool("cleared", clearFirst).Msg("question catalog seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML or JSON file with questions")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "delete every existing question first")
	return cmd
}

// loadQuestionFile accepts either a plain list of questions or an Open Trivia DB API
// response with a top-level "results" list. JSON parses as YAML, so both formats share
// one decoder.
func loadQuestionFile(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []domain.Question
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Results []domain.Question `yaml:"results"`
	}
	if err := yaml.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if envelope.Results == nil {
		return nil, fmt.Errorf("parse %s: no questions found", path)
	}
	return envelope.Results, nil
}
