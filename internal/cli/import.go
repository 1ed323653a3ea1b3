package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"chapter-quiz-service/internal/config"
	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/infra/files"
	pgstore "chapter-quiz-service/internal/infra/postgres"
	"chapter-quiz-service/internal/logging"
)

// NewImportCmd copies chapter content files into Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import chapter content files into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Quiz.Dir
			}
			if dir == "" {
				return errors.New("no content directory: set --dir or quiz.dir")
			}
			if cfg.Postgres.URL == "" {
				return errors.New("postgres url not configured")
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)

			ctx := cmd.Context()
			if err := runMigrations(ctx, cfg, logger); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := importChapters(ctx, files.NewQuizLoader(dir), pgstore.NewQuizLoader(pool), cfg.Quiz.TotalChapters, logger)
			if err != nil {
				return err
			}
			logger.Info("chapters imported", "count", n, "dir", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "content directory (defaults to quiz.dir)")
	return cmd
}

type chapterSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.QuizDefinition) error
}

type chapterSource interface {
	LoadQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error)
}

// importChapters copies chapters 1..total from src to dst, skipping absent ones.
func importChapters(ctx context.Context, src chapterSource, dst chapterSaver, total int, logger *slog.Logger) (int, error) {
	imported := 0
	for ch := 1; ch <= total; ch++ {
		def, err := src.LoadQuiz(ctx, domain.ChapterKey(ch))
		if errors.Is(err, domain.ErrQuizNotFound) {
			logger.Debug("chapter has no content", "chapter", ch)
			continue
		}
		if err != nil {
			return imported, fmt.Errorf("load chapter %d: %w", ch, err)
		}
		if err := files.Check(def); err != nil {
			return imported, fmt.Errorf("chapter %d: %w", ch, err)
		}
		def.Chapter = ch
		if err := dst.SaveQuiz(ctx, def); err != nil {
			return imported, fmt.Errorf("save chapter %d: %w", ch, err)
		}
		imported++
	}
	return imported, nil
}
