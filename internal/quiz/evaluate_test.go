package quiz

import (
	"errors"
	"testing"

	"chapter-quiz-service/internal/domain"
)

func TestIsCorrectMultipleChoiceMapsThroughPermutation(t *testing.T) {
	q := domain.Question{
		Kind:         domain.KindMultipleChoice,
		Options:      []string{"a", "b", "c", "d"},
		CorrectIndex: 2,
	}
	order := []int{3, 2, 0, 1} // display 1 shows original 2
	if !IsCorrect(q, order, ChoiceResponse(1)) {
		t.Fatalf("expected display 1 to be correct")
	}
	for _, display := range []int{0, 2, 3} {
		if IsCorrect(q, order, ChoiceResponse(display)) {
			t.Fatalf("display %d should be incorrect", display)
		}
	}
	if IsCorrect(q, order, ChoiceResponse(9)) || IsCorrect(q, order, ChoiceResponse(-1)) {
		t.Fatalf("out of range choices must be incorrect")
	}
}

func TestIsCorrectScenarioWithoutPermutation(t *testing.T) {
	q := domain.Question{Kind: domain.KindScenario, Options: []string{"x", "y"}, CorrectIndex: 1}
	if !IsCorrect(q, nil, ChoiceResponse(1)) {
		t.Fatalf("expected identity mapping when no order is given")
	}
}

func TestIsCorrectTrueFalse(t *testing.T) {
	yes := domain.Question{Kind: domain.KindTrueFalse, CorrectBool: true}
	no := domain.Question{Kind: domain.KindTrueFalse, CorrectBool: false}
	if !IsCorrect(yes, nil, ChoiceResponse(0)) || IsCorrect(yes, nil, ChoiceResponse(1)) {
		t.Fatalf("true question judged wrongly")
	}
	if !IsCorrect(no, nil, ChoiceResponse(1)) || IsCorrect(no, nil, ChoiceResponse(0)) {
		t.Fatalf("false question judged wrongly")
	}
	if IsCorrect(yes, nil, ChoiceResponse(2)) {
		t.Fatalf("choice 2 is not a true-false answer")
	}
}

func TestIsCorrectMatchingRequiresEveryPair(t *testing.T) {
	q := domain.Question{Kind: domain.KindMatching, Pairs: []domain.MatchPair{
		{Left: "a", Right: "1"}, {Left: "b", Right: "2"}, {Left: "c", Right: "3"},
	}}
	if !IsCorrect(q, nil, MatchResponse(map[int]int{0: 0, 1: 1, 2: 2})) {
		t.Fatalf("identity matching should be correct")
	}
	if IsCorrect(q, nil, MatchResponse(map[int]int{0: 0, 1: 2, 2: 1})) {
		t.Fatalf("swapped pair should be incorrect")
	}
	if IsCorrect(q, nil, MatchResponse(map[int]int{0: 0, 1: 1})) {
		t.Fatalf("partial matching should be incorrect")
	}
}

func TestIsCorrectOrdering(t *testing.T) {
	q := domain.Question{Kind: domain.KindOrdering, Items: []string{"w", "x", "y", "z"}, CorrectOrder: []int{2, 0, 3, 1}}
	if !IsCorrect(q, nil, OrderResponse(2, 0, 3, 1)) {
		t.Fatalf("reference order should be correct")
	}
	// any single swap of neighbours breaks it
	for i := 0; i < 3; i++ {
		perturbed := []int{2, 0, 3, 1}
		perturbed[i], perturbed[i+1] = perturbed[i+1], perturbed[i]
		if IsCorrect(q, nil, OrderResponse(perturbed...)) {
			t.Fatalf("perturbed order %v should be incorrect", perturbed)
		}
	}
	identity := domain.Question{Kind: domain.KindOrdering, Items: []string{"a", "b"}}
	if !IsCorrect(identity, nil, OrderResponse(0, 1)) {
		t.Fatalf("missing correctOrder means identity")
	}
}

func TestIsCorrectFillBlankNormalizes(t *testing.T) {
	q := domain.Question{Kind: domain.KindFillBlank, AcceptedAnswers: []string{"Socrates", " plato "}}
	for _, in := range []string{"socrates", "  SOCRATES ", "Plato"} {
		if !IsCorrect(q, nil, TextResponse(in)) {
			t.Fatalf("%q should be accepted", in)
		}
	}
	if IsCorrect(q, nil, TextResponse("aristotle")) {
		t.Fatalf("aristotle should be rejected")
	}
}

func TestIsCorrectAbsentResponse(t *testing.T) {
	kinds := []domain.QuestionKind{
		domain.KindMultipleChoice, domain.KindTrueFalse, domain.KindScenario,
		domain.KindMatching, domain.KindOrdering, domain.KindFillBlank,
	}
	for _, k := range kinds {
		q := domain.Question{Kind: k, Options: []string{"a"}, Pairs: []domain.MatchPair{{Left: "a", Right: "b"}}, Items: []string{"a"}}
		if IsCorrect(q, nil, nil) {
			t.Fatalf("%s: nil response must be incorrect", k)
		}
		if IsCorrect(q, nil, &Response{}) {
			t.Fatalf("%s: empty response must be incorrect", k)
		}
	}
}

func TestValidateResponseRejectsWrongShape(t *testing.T) {
	mc := domain.Question{Kind: domain.KindMultipleChoice, Options: []string{"a", "b"}}
	if err := ValidateResponse(mc, TextResponse("a")); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
	if err := ValidateResponse(mc, ChoiceResponse(1)); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	ord := domain.Question{Kind: domain.KindOrdering, Items: []string{"a", "b", "c"}}
	if err := ValidateResponse(ord, OrderResponse(0, 1)); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("expected invalid ordering length, got %v", err)
	}
	for _, order := range [][]int{{0, 0, 0}, {0, 1, 3}, {-1, 0, 1}} {
		if err := ValidateResponse(ord, OrderResponse(order...)); !errors.Is(err, domain.ErrInvalidResponse) {
			t.Fatalf("expected %v to be rejected, got %v", order, err)
		}
	}
	if err := ValidateResponse(ord, OrderResponse(2, 0, 1)); err != nil {
		t.Fatalf("expected a permutation to be valid, got %v", err)
	}
}

func TestToOriginalMapsDisplayedIndices(t *testing.T) {
	m := domain.Question{Kind: domain.KindMatching, Pairs: []domain.MatchPair{{}, {}, {}}}
	got := ToOriginal(m, []int{1, 2, 0}, nil, MatchResponse(map[int]int{0: 2, 1: 0, 2: 5}))
	if got.Matches[0] != 0 || got.Matches[1] != 1 || got.Matches[2] != -1 {
		t.Fatalf("unexpected matches %v", got.Matches)
	}
	if !IsCorrect(m, nil, ToOriginal(m, []int{1, 2, 0}, nil, MatchResponse(map[int]int{0: 2, 1: 0, 2: 1}))) {
		t.Fatalf("expected translated matching to be correct")
	}

	o := domain.Question{Kind: domain.KindOrdering, Items: []string{"x", "y", "z"}}
	got = ToOriginal(o, nil, []int{2, 0, 1}, OrderResponse(1, 2, 0))
	if want := []int{0, 1, 2}; len(got.Order) != 3 || got.Order[0] != want[0] || got.Order[1] != want[1] || got.Order[2] != want[2] {
		t.Fatalf("unexpected order %v", got.Order)
	}

	fb := domain.Question{Kind: domain.KindFillBlank}
	r := TextResponse("x")
	if ToOriginal(fb, []int{1, 0}, []int{1, 0}, r) != r {
		t.Fatalf("other kinds pass through")
	}
}

func TestNormalizeAnswer(t *testing.T) {
	q := domain.Question{Kind: domain.KindMultipleChoice, Options: []string{"a", "b", "c"}, CorrectIndex: 0}
	user, correct := NormalizeAnswer(q, []int{2, 0, 1}, ChoiceResponse(0))
	if user != "2" || correct != "0" {
		t.Fatalf("expected user=2 correct=0, got user=%s correct=%s", user, correct)
	}
	m := domain.Question{Kind: domain.KindMatching, Pairs: []domain.MatchPair{{}, {}}}
	user, correct = NormalizeAnswer(m, nil, MatchResponse(map[int]int{1: 0, 0: 1}))
	if user != "0-1,1-0" || correct != "0-0,1-1" {
		t.Fatalf("unexpected matching normalization user=%s correct=%s", user, correct)
	}
}
