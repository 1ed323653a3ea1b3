package files

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapter-quiz-service/internal/domain"
)

const chapterYAML = `
chapter: 3
passingScore: 70
questions:
  - kind: multiple-choice
    prompt: Which virtue lies between rashness and cowardice?
    options: [Temperance, Courage, Justice]
    correctIndex: 1
    explanation: The mean between two vices.
    hints: [Think of the battlefield.]
  - kind: true-false
    prompt: Virtue is a habit.
    correctBool: true
  - kind: ordering
    prompt: Order the steps.
    items: [a, b, c]
    correctOrder: [2, 0, 1]
`

const chapterJSON = `{"chapter":4,"passingScore":60,"questions":[{"kind":"fill-blank","prompt":"The unexamined ___ is not worth living.","acceptedAnswers":["life"]}]}`

func TestLoadYAMLAndJSON(t *testing.T) {
	loader := NewQuizLoaderFS(fstest.MapFS{
		"03.yaml": {Data: []byte(chapterYAML)},
		"04.json": {Data: []byte(chapterJSON)},
	})

	quiz, err := loader.LoadQuiz(context.Background(), "03")
	require.NoError(t, err)
	assert.Equal(t, 3, quiz.Chapter)
	assert.Equal(t, 70, quiz.PassingScore)
	require.Len(t, quiz.Questions, 3)
	assert.Equal(t, domain.KindMultipleChoice, quiz.Questions[0].Kind)
	assert.Equal(t, 1, quiz.Questions[0].CorrectIndex)
	assert.Equal(t, []string{"Think of the battlefield."}, quiz.Questions[0].Hints)
	assert.True(t, quiz.Questions[1].CorrectBool)
	assert.Equal(t, []int{2, 0, 1}, quiz.Questions[2].CorrectOrder)

	quiz, err = loader.LoadQuiz(context.Background(), "04")
	require.NoError(t, err)
	assert.Equal(t, []string{"life"}, quiz.Questions[0].AcceptedAnswers)
}

func TestLoadMissingChapter(t *testing.T) {
	loader := NewQuizLoaderFS(fstest.MapFS{})
	_, err := loader.LoadQuiz(context.Background(), "12")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)

	_, err = loader.LoadQuiz(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestLoadRejectsBrokenContent(t *testing.T) {
	loader := NewQuizLoaderFS(fstest.MapFS{
		"05.yaml": {Data: []byte("chapter: 5\nquestions:\n  - kind: multiple-choice\n    options: [a]\n    correctIndex: 4\n")},
		"06.yaml": {Data: []byte("chapter: 6\nquestions: [\n")},
	})
	_, err := loader.LoadQuiz(context.Background(), "05")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)

	_, err = loader.LoadQuiz(context.Background(), "06")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrQuizNotFound))
}
