package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"chapter-quiz-service/internal/domain"
)

var extensions = []string{".yaml", ".yml", ".json"}

// QuizLoader reads chapter content from <dir>/<chapterKey>.{yaml,yml,json}.
// JSON files are read by the YAML decoder, which accepts JSON as YAML.
type QuizLoader struct {
	fsys fs.FS
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{fsys: os.DirFS(dir)}
}

// NewQuizLoaderFS is NewQuizLoader over any fs.FS, such as an embedded tree.
func NewQuizLoaderFS(fsys fs.FS) *QuizLoader {
	return &QuizLoader{fsys: fsys}
}

func (l *QuizLoader) LoadQuiz(_ context.Context, chapterKey string) (domain.QuizDefinition, error) {
	if !fs.ValidPath(chapterKey) || filepath.Base(chapterKey) != chapterKey {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	for _, ext := range extensions {
		raw, err := fs.ReadFile(l.fsys, chapterKey+ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.QuizDefinition{}, fmt.Errorf("read quiz %s: %w", chapterKey, err)
		}
		var quiz domain.QuizDefinition
		if err := yaml.Unmarshal(raw, &quiz); err != nil {
			return domain.QuizDefinition{}, fmt.Errorf("parse quiz %s%s: %w", chapterKey, ext, err)
		}
		if len(quiz.Questions) == 0 {
			return domain.QuizDefinition{}, domain.ErrQuizNotFound
		}
		if err := Check(quiz); err != nil {
			return domain.QuizDefinition{}, fmt.Errorf("quiz %s: %w", chapterKey, err)
		}
		return quiz, nil
	}
	return domain.QuizDefinition{}, domain.ErrQuizNotFound
}

// Check verifies that every question carries what its kind needs.
func Check(quiz domain.QuizDefinition) error {
	if quiz.PassingScore < 0 || quiz.PassingScore > 100 {
		return fmt.Errorf("%w: passing score %d", domain.ErrInvalidInput, quiz.PassingScore)
	}
	for i, q := range quiz.Questions {
		if !q.Kind.Valid() {
			return fmt.Errorf("%w: question %d: unknown kind %q", domain.ErrInvalidInput, i, q.Kind)
		}
		switch q.Kind {
		case domain.KindMultipleChoice, domain.KindScenario:
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				return fmt.Errorf("%w: question %d: correct index %d out of %d options", domain.ErrInvalidInput, i, q.CorrectIndex, len(q.Options))
			}
		case domain.KindMatching:
			if len(q.Pairs) == 0 {
				return fmt.Errorf("%w: question %d: no pairs", domain.ErrInvalidInput, i)
			}
		case domain.KindOrdering:
			if len(q.Items) == 0 || (len(q.CorrectOrder) > 0 && len(q.CorrectOrder) != len(q.Items)) {
				return fmt.Errorf("%w: question %d: bad ordering items", domain.ErrInvalidInput, i)
			}
		case domain.KindFillBlank:
			if len(q.AcceptedAnswers) == 0 {
				return fmt.Errorf("%w: question %d: no accepted answers", domain.ErrInvalidInput, i)
			}
		}
	}
	return nil
}
