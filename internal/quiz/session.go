package quiz

import (
	"fmt"
	"sort"

	"chapter-quiz-service/internal/domain"
)

// Phase is the coarse state of a session.
type Phase string

const (
	PhaseNotStarted Phase = "not-started"
	PhaseActive     Phase = "active"
	PhaseComplete   Phase = "complete"
)

// CommandType names one of the session commands.
type CommandType string

const (
	CmdStart    CommandType = "start"
	CmdRetry    CommandType = "retry"
	CmdAnswer   CommandType = "answer"
	CmdContinue CommandType = "continue"
	CmdHint     CommandType = "hint"
	CmdPrev     CommandType = "prev"
)

// Command is the input of Reduce. Response is only read by CmdAnswer.
type Command struct {
	Type     CommandType
	Response *Response
}

// State is one chapter attempt. Values are never mutated in place by Reduce;
// every transition returns a fresh copy.
type State struct {
	Chapter           int               `json:"chapter"`
	Phase             Phase             `json:"phase"`
	QuestionOrder     []int             `json:"questionOrder"`
	OptionOrders      map[int][]int     `json:"optionOrders"` // original question index -> display->original option
	RightOrders       map[int][]int     `json:"rightOrders"`  // original question index -> display->original right (matching)
	ItemOrders        map[int][]int     `json:"itemOrders"`   // original question index -> display->original item (ordering)
	Position          int               `json:"position"`
	Responses         map[int]*Response `json:"responses"`   // display position -> response
	HintLevels        map[int]int       `json:"hintLevels"`  // display position -> hints revealed
	Correctness       map[int]bool      `json:"correctness"` // display position -> evaluated result
	HintsUsed         int               `json:"hintsUsed"`
	FeedbackShown     bool              `json:"feedbackShown"`
	ImmediateFeedback bool              `json:"immediateFeedback"`
}

// Feedback is revealed right after an answer.
type Feedback struct {
	Position      int    `json:"position"`
	Correct       bool   `json:"correct"`
	Explanation   string `json:"explanation"`
	OptionMarks   []bool `json:"optionMarks,omitempty"` // display order; true marks the correct option
	CorrectAnswer string `json:"correctAnswer"`
}

// Outcome carries what a transition produced besides the new state.
type Outcome struct {
	Feedback *Feedback             `json:"feedback,omitempty"`
	Hint     string                `json:"hint,omitempty"`
	Result   *domain.AttemptResult `json:"result,omitempty"`
}

// Machine holds the knobs of the reducer.
type Machine struct {
	Shuffle           func(n int) []int
	ImmediateFeedback bool
}

// DefaultMachine shuffles with ShuffleIndices and shows feedback after every answer.
var DefaultMachine = Machine{Shuffle: ShuffleIndices, ImmediateFeedback: true}

// Reduce applies cmd to s using DefaultMachine.
func Reduce(def domain.QuizDefinition, s State, cmd Command) (State, Outcome, error) {
	return DefaultMachine.Reduce(def, s, cmd)
}

// Reduce applies cmd to s. On error the returned state equals s.
func (m Machine) Reduce(def domain.QuizDefinition, s State, cmd Command) (State, Outcome, error) {
	switch cmd.Type {
	case CmdStart, CmdRetry:
		next, err := m.start(def)
		if err != nil {
			return s, Outcome{}, err
		}
		return next, Outcome{}, nil
	case CmdAnswer:
		return m.answer(def, s, cmd.Response)
	case CmdContinue:
		return m.advance(def, s)
	case CmdHint:
		return m.hint(def, s)
	case CmdPrev:
		return m.prev(s)
	}
	return s, Outcome{}, fmt.Errorf("%w: unknown command %q", domain.ErrInvalidTransition, cmd.Type)
}

func (m Machine) start(def domain.QuizDefinition) (State, error) {
	n := len(def.Questions)
	if n == 0 {
		return State{}, fmt.Errorf("chapter %d: %w", def.Chapter, domain.ErrQuizNotFound)
	}
	shuffle := m.Shuffle
	if shuffle == nil {
		shuffle = ShuffleIndices
	}
	s := State{
		Chapter:           def.Chapter,
		Phase:             PhaseActive,
		QuestionOrder:     shuffle(n),
		OptionOrders:      make(map[int][]int),
		RightOrders:       make(map[int][]int),
		ItemOrders:        make(map[int][]int),
		Responses:         make(map[int]*Response),
		HintLevels:        make(map[int]int),
		Correctness:       make(map[int]bool),
		ImmediateFeedback: m.ImmediateFeedback,
	}
	for i, q := range def.Questions {
		switch {
		case q.Kind.HasOptions():
			s.OptionOrders[i] = shuffle(len(q.Options))
		case q.Kind == domain.KindMatching:
			s.RightOrders[i] = shuffle(len(q.Pairs))
		case q.Kind == domain.KindOrdering:
			s.ItemOrders[i] = shuffle(len(q.Items))
		}
	}
	return s, nil
}

func (m Machine) answer(def domain.QuizDefinition, s State, r *Response) (State, Outcome, error) {
	if s.Phase != PhaseActive || s.FeedbackShown {
		return s, Outcome{}, fmt.Errorf("%w: answer while %s", domain.ErrInvalidTransition, describe(s))
	}
	q, qi, err := current(def, s)
	if err != nil {
		return s, Outcome{}, err
	}

	next := s.clone()
	next.Responses[s.Position] = r.clone()
	correct := IsCorrect(q, s.OptionOrders[qi], s.original(q, qi, r))
	next.Correctness[s.Position] = correct

	if !s.ImmediateFeedback {
		return next, Outcome{}, nil
	}
	next.FeedbackShown = true
	reference := displayReference(q, s.RightOrders[qi], s.ItemOrders[qi])
	if reference == "" {
		_, reference = NormalizeAnswer(q, s.OptionOrders[qi], nil)
	}
	fb := &Feedback{
		Position:      s.Position,
		Correct:       correct,
		Explanation:   q.Explanation,
		CorrectAnswer: reference,
	}
	if q.Kind.HasOptions() {
		order := s.OptionOrders[qi]
		fb.OptionMarks = make([]bool, len(q.Options))
		for display := range fb.OptionMarks {
			original, ok := originalOption(order, len(q.Options), display)
			fb.OptionMarks[display] = ok && original == q.CorrectIndex
		}
	}
	return next, Outcome{Feedback: fb}, nil
}

// advance implements continue. It is accepted while feedback is shown, and
// also on a position that already holds a response (a revisited question, or
// any answered question when immediate feedback is off).
func (m Machine) advance(def domain.QuizDefinition, s State) (State, Outcome, error) {
	if s.Phase != PhaseActive {
		return s, Outcome{}, fmt.Errorf("%w: continue while %s", domain.ErrInvalidTransition, describe(s))
	}
	if !s.FeedbackShown && s.Responses[s.Position] == nil {
		return s, Outcome{}, fmt.Errorf("%w: continue before answering", domain.ErrInvalidTransition)
	}
	next := s.clone()
	next.FeedbackShown = false
	if s.Position >= len(s.QuestionOrder)-1 {
		next.Phase = PhaseComplete
		result := buildResult(def, next)
		return next, Outcome{Result: &result}, nil
	}
	next.Position++
	return next, Outcome{}, nil
}

func (m Machine) hint(def domain.QuizDefinition, s State) (State, Outcome, error) {
	if s.Phase != PhaseActive || s.FeedbackShown {
		return s, Outcome{}, fmt.Errorf("%w: hint while %s", domain.ErrInvalidTransition, describe(s))
	}
	q, _, err := current(def, s)
	if err != nil {
		return s, Outcome{}, err
	}
	level := s.HintLevels[s.Position]
	if level >= len(q.Hints) {
		return s, Outcome{}, domain.ErrNoHintsRemaining
	}
	next := s.clone()
	next.HintLevels[s.Position] = level + 1
	next.HintsUsed++
	return next, Outcome{Hint: q.Hints[level]}, nil
}

func (m Machine) prev(s State) (State, Outcome, error) {
	if s.Phase != PhaseActive || s.FeedbackShown || s.Position == 0 {
		return s, Outcome{}, fmt.Errorf("%w: prev while %s", domain.ErrInvalidTransition, describe(s))
	}
	next := s.clone()
	next.Position--
	return next, Outcome{}, nil
}

func buildResult(def domain.QuizDefinition, s State) domain.AttemptResult {
	result := domain.AttemptResult{
		Chapter:   s.Chapter,
		Total:     len(s.QuestionOrder),
		HintsUsed: s.HintsUsed,
		Responses: make([]domain.QuestionResponse, 0, len(s.QuestionOrder)),
	}
	for pos, qi := range s.QuestionOrder {
		q := def.Questions[qi]
		r := s.original(q, qi, s.Responses[pos])
		correct := IsCorrect(q, s.OptionOrders[qi], r)
		if correct {
			result.Correct++
		}
		user, reference := NormalizeAnswer(q, s.OptionOrders[qi], r)
		result.Responses = append(result.Responses, domain.QuestionResponse{
			QuestionIndex: qi,
			Kind:          q.Kind,
			UserAnswer:    user,
			CorrectAnswer: reference,
			Correct:       correct,
			HintsUsed:     s.HintLevels[pos],
		})
	}
	sort.Slice(result.Responses, func(i, j int) bool {
		return result.Responses[i].QuestionIndex < result.Responses[j].QuestionIndex
	})
	result.Percentage = domain.Percentage(result.Correct, result.Total)
	return result
}

// original moves a displayed response into definition order.
func (s State) original(q domain.Question, qi int, r *Response) *Response {
	return ToOriginal(q, s.RightOrders[qi], s.ItemOrders[qi], r)
}

func current(def domain.QuizDefinition, s State) (domain.Question, int, error) {
	if s.Position < 0 || s.Position >= len(s.QuestionOrder) {
		return domain.Question{}, 0, fmt.Errorf("%w: position %d out of range", domain.ErrInvalidTransition, s.Position)
	}
	qi := s.QuestionOrder[s.Position]
	if qi < 0 || qi >= len(def.Questions) {
		return domain.Question{}, 0, fmt.Errorf("%w: question %d missing from chapter %d", domain.ErrInvalidTransition, qi, def.Chapter)
	}
	return def.Questions[qi], qi, nil
}

func describe(s State) string {
	if s.Phase == PhaseActive && s.FeedbackShown {
		return "feedback shown"
	}
	if s.Phase == "" {
		return string(PhaseNotStarted)
	}
	return string(s.Phase)
}

func (s State) clone() State {
	out := s
	out.QuestionOrder = append([]int(nil), s.QuestionOrder...)
	out.OptionOrders = make(map[int][]int, len(s.OptionOrders))
	for k, v := range s.OptionOrders {
		out.OptionOrders[k] = append([]int(nil), v...)
	}
	out.RightOrders = cloneOrders(s.RightOrders)
	out.ItemOrders = cloneOrders(s.ItemOrders)
	out.Responses = make(map[int]*Response, len(s.Responses))
	for k, v := range s.Responses {
		out.Responses[k] = v.clone()
	}
	out.HintLevels = make(map[int]int, len(s.HintLevels))
	for k, v := range s.HintLevels {
		out.HintLevels[k] = v
	}
	out.Correctness = make(map[int]bool, len(s.Correctness))
	for k, v := range s.Correctness {
		out.Correctness[k] = v
	}
	return out
}

func cloneOrders(in map[int][]int) map[int][]int {
	out := make(map[int][]int, len(in))
	for k, v := range in {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// AdjustedPercentage applies the hint penalty: 5 points per hint, capped at 25.
func AdjustedPercentage(percentage, hints int) int {
	penalty := hints * 5
	if penalty > 25 {
		penalty = 25
	}
	if adjusted := percentage - penalty; adjusted > 0 {
		return adjusted
	}
	return 0
}

// Passed reports whether percentage meets the chapter's passing score.
func Passed(def domain.QuizDefinition, percentage int) bool {
	return percentage >= def.PassingScore
}
