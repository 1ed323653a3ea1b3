package quiz

import "chapter-quiz-service/internal/domain"

// QuestionView is the render-ready form of the current question.
type QuestionView struct {
	Kind           domain.QuestionKind `json:"kind"`
	Prompt         string              `json:"prompt"`
	Options        []string            `json:"options,omitempty"` // display order
	Lefts          []string            `json:"lefts,omitempty"`
	Rights         []string            `json:"rights,omitempty"` // display order
	Items          []string            `json:"items,omitempty"`  // display order
	HintsRevealed  []string            `json:"hintsRevealed,omitempty"`
	HintsRemaining int                 `json:"hintsRemaining"`
	Response       *Response           `json:"response,omitempty"`
}

// Snapshot is what subscribers see after every transition.
type Snapshot struct {
	Chapter       int           `json:"chapter"`
	Phase         Phase         `json:"phase"`
	Position      int           `json:"position"`
	Total         int           `json:"total"`
	Answered      int           `json:"answered"`
	HintsUsed     int           `json:"hintsUsed"`
	FeedbackShown bool          `json:"feedbackShown"`
	CanPrev       bool          `json:"canPrev"`
	CanContinue   bool          `json:"canContinue"`
	Question      *QuestionView `json:"question,omitempty"`
}

var trueFalseLabels = []string{"True", "False"}

// TakeSnapshot renders s without exposing correct answers.
func TakeSnapshot(def domain.QuizDefinition, s State) Snapshot {
	snap := Snapshot{
		Chapter:       s.Chapter,
		Phase:         s.Phase,
		Position:      s.Position,
		Total:         len(s.QuestionOrder),
		Answered:      len(s.Responses),
		HintsUsed:     s.HintsUsed,
		FeedbackShown: s.FeedbackShown,
	}
	if snap.Phase == "" {
		snap.Phase = PhaseNotStarted
	}
	if s.Phase != PhaseActive {
		return snap
	}
	snap.CanPrev = !s.FeedbackShown && s.Position > 0
	snap.CanContinue = s.FeedbackShown || s.Responses[s.Position] != nil

	q, qi, err := current(def, s)
	if err != nil {
		return snap
	}
	view := &QuestionView{
		Kind:     q.Kind,
		Prompt:   q.Prompt,
		Response: s.Responses[s.Position].clone(),
	}
	switch q.Kind {
	case domain.KindMultipleChoice, domain.KindScenario:
		order := s.OptionOrders[qi]
		view.Options = make([]string, 0, len(q.Options))
		for display := range q.Options {
			if original, ok := originalOption(order, len(q.Options), display); ok {
				view.Options = append(view.Options, q.Options[original])
			}
		}
	case domain.KindTrueFalse:
		view.Options = trueFalseLabels
	case domain.KindMatching:
		order := s.RightOrders[qi]
		for display, p := range q.Pairs {
			view.Lefts = append(view.Lefts, p.Left)
			if original := mapIndex(order, len(q.Pairs), display); original >= 0 && original < len(q.Pairs) {
				view.Rights = append(view.Rights, q.Pairs[original].Right)
			}
		}
	case domain.KindOrdering:
		order := s.ItemOrders[qi]
		for display := range q.Items {
			if original := mapIndex(order, len(q.Items), display); original >= 0 && original < len(q.Items) {
				view.Items = append(view.Items, q.Items[original])
			}
		}
	}
	level := s.HintLevels[s.Position]
	if level > len(q.Hints) {
		level = len(q.Hints)
	}
	view.HintsRevealed = append([]string(nil), q.Hints[:level]...)
	view.HintsRemaining = len(q.Hints) - level
	snap.Question = view
	return snap
}
