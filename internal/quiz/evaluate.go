package quiz

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"chapter-quiz-service/internal/domain"
)

// Response is the raw input for one question. Only the field matching the
// question kind is read:
//   - Choice: display index (multiple-choice, scenario) or 0=true/1=false (true-false)
//   - Matches: left index -> displayed right index (matching)
//   - Order: displayed item indices (ordering)
//   - Text: free text (fill-blank)
type Response struct {
	Choice  *int        `json:"choice,omitempty"`
	Matches map[int]int `json:"matches,omitempty"`
	Order   []int       `json:"order,omitempty"`
	Text    *string     `json:"text,omitempty"`
}

// ChoiceResponse builds a Response for choice-based kinds.
func ChoiceResponse(i int) *Response { return &Response{Choice: &i} }

// TextResponse builds a fill-blank Response.
func TextResponse(s string) *Response { return &Response{Text: &s} }

// MatchResponse builds a matching Response.
func MatchResponse(m map[int]int) *Response { return &Response{Matches: m} }

// OrderResponse builds an ordering Response.
func OrderResponse(order ...int) *Response { return &Response{Order: order} }

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{}
	if r.Choice != nil {
		c := *r.Choice
		out.Choice = &c
	}
	if r.Text != nil {
		t := *r.Text
		out.Text = &t
	}
	if r.Matches != nil {
		out.Matches = make(map[int]int, len(r.Matches))
		for k, v := range r.Matches {
			out.Matches[k] = v
		}
	}
	if r.Order != nil {
		out.Order = append([]int(nil), r.Order...)
	}
	return out
}

// IsCorrect judges a response. optionOrder maps display index to original
// option index and is only consulted for multiple-choice and scenario.
// Matching and ordering responses must already be in definition order (see
// ToOriginal). A nil or mis-shaped response is incorrect.
func IsCorrect(q domain.Question, optionOrder []int, r *Response) bool {
	if r == nil {
		return false
	}
	switch q.Kind {
	case domain.KindMultipleChoice, domain.KindScenario:
		if r.Choice == nil {
			return false
		}
		original, ok := originalOption(optionOrder, len(q.Options), *r.Choice)
		return ok && original == q.CorrectIndex
	case domain.KindTrueFalse:
		if r.Choice == nil || (*r.Choice != 0 && *r.Choice != 1) {
			return false
		}
		return (*r.Choice == 0) == q.CorrectBool
	case domain.KindMatching:
		if len(q.Pairs) == 0 || len(r.Matches) != len(q.Pairs) {
			return false
		}
		for left := range q.Pairs {
			right, ok := r.Matches[left]
			if !ok || right != left {
				return false
			}
		}
		return true
	case domain.KindOrdering:
		want := q.ReferenceOrder()
		if len(r.Order) != len(want) {
			return false
		}
		for i := range want {
			if r.Order[i] != want[i] {
				return false
			}
		}
		return true
	case domain.KindFillBlank:
		if r.Text == nil {
			return false
		}
		got := normalizeText(*r.Text)
		for _, accepted := range q.AcceptedAnswers {
			if normalizeText(accepted) == got {
				return true
			}
		}
		return false
	}
	return false
}

// ValidateResponse rejects a response whose shape does not fit the kind.
func ValidateResponse(q domain.Question, r *Response) error {
	if r == nil {
		return fmt.Errorf("%w: empty response", domain.ErrInvalidResponse)
	}
	switch q.Kind {
	case domain.KindMultipleChoice, domain.KindScenario:
		if r.Choice == nil {
			return fmt.Errorf("%w: %s expects a choice", domain.ErrInvalidResponse, q.Kind)
		}
		if *r.Choice < 0 || *r.Choice >= len(q.Options) {
			return fmt.Errorf("%w: choice %d out of range", domain.ErrInvalidResponse, *r.Choice)
		}
	case domain.KindTrueFalse:
		if r.Choice == nil || (*r.Choice != 0 && *r.Choice != 1) {
			return fmt.Errorf("%w: true-false expects choice 0 or 1", domain.ErrInvalidResponse)
		}
	case domain.KindMatching:
		if r.Matches == nil {
			return fmt.Errorf("%w: matching expects matches", domain.ErrInvalidResponse)
		}
		for left, right := range r.Matches {
			if left < 0 || left >= len(q.Pairs) || right < 0 || right >= len(q.Pairs) {
				return fmt.Errorf("%w: match %d->%d out of range", domain.ErrInvalidResponse, left, right)
			}
		}
	case domain.KindOrdering:
		if len(r.Order) != len(q.Items) {
			return fmt.Errorf("%w: ordering expects %d items", domain.ErrInvalidResponse, len(q.Items))
		}
		seen := make(map[int]bool, len(r.Order))
		for _, item := range r.Order {
			if item < 0 || item >= len(q.Items) || seen[item] {
				return fmt.Errorf("%w: ordering item %d out of range or repeated", domain.ErrInvalidResponse, item)
			}
			seen[item] = true
		}
	case domain.KindFillBlank:
		if r.Text == nil {
			return fmt.Errorf("%w: fill-blank expects text", domain.ErrInvalidResponse)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidResponse, q.Kind)
	}
	return nil
}

// NormalizeAnswer renders the user's answer and the reference answer in
// original (unshuffled) space for telemetry.
func NormalizeAnswer(q domain.Question, optionOrder []int, r *Response) (user, correct string) {
	switch q.Kind {
	case domain.KindMultipleChoice, domain.KindScenario:
		correct = strconv.Itoa(q.CorrectIndex)
		if r != nil && r.Choice != nil {
			if original, ok := originalOption(optionOrder, len(q.Options), *r.Choice); ok {
				user = strconv.Itoa(original)
			}
		}
	case domain.KindTrueFalse:
		correct = strconv.FormatBool(q.CorrectBool)
		if r != nil && r.Choice != nil {
			user = strconv.FormatBool(*r.Choice == 0)
		}
	case domain.KindMatching:
		identity := make(map[int]int, len(q.Pairs))
		for i := range q.Pairs {
			identity[i] = i
		}
		correct = joinMatches(identity)
		if r != nil {
			user = joinMatches(r.Matches)
		}
	case domain.KindOrdering:
		correct = joinInts(q.ReferenceOrder())
		if r != nil {
			user = joinInts(r.Order)
		}
	case domain.KindFillBlank:
		if len(q.AcceptedAnswers) > 0 {
			correct = normalizeText(q.AcceptedAnswers[0])
		}
		if r != nil && r.Text != nil {
			user = normalizeText(*r.Text)
		}
	}
	return user, correct
}

// ToOriginal translates the displayed right-column indices of a matching
// response, or the displayed item indices of an ordering response, into
// definition order. rightOrder and itemOrder map display index to original
// index; an empty order is the identity. Indices that do not map become -1.
// Other kinds are returned unchanged.
func ToOriginal(q domain.Question, rightOrder, itemOrder []int, r *Response) *Response {
	if r == nil {
		return nil
	}
	switch q.Kind {
	case domain.KindMatching:
		if r.Matches == nil {
			return r
		}
		out := &Response{Matches: make(map[int]int, len(r.Matches))}
		for left, display := range r.Matches {
			out.Matches[left] = mapIndex(rightOrder, len(q.Pairs), display)
		}
		return out
	case domain.KindOrdering:
		if r.Order == nil {
			return r
		}
		out := &Response{Order: make([]int, len(r.Order))}
		for i, display := range r.Order {
			out.Order[i] = mapIndex(itemOrder, len(q.Items), display)
		}
		return out
	}
	return r
}

// displayReference renders the reference answer of a matching or ordering
// question in the indices the player sees.
func displayReference(q domain.Question, rightOrder, itemOrder []int) string {
	switch q.Kind {
	case domain.KindMatching:
		where := inverse(rightOrder, len(q.Pairs))
		m := make(map[int]int, len(q.Pairs))
		for left := range q.Pairs {
			m[left] = where[left]
		}
		return joinMatches(m)
	case domain.KindOrdering:
		where := inverse(itemOrder, len(q.Items))
		ref := q.ReferenceOrder()
		out := make([]int, len(ref))
		for i, original := range ref {
			if original >= 0 && original < len(where) {
				out[i] = where[original]
			}
		}
		return joinInts(out)
	}
	return ""
}

func mapIndex(order []int, n, display int) int {
	if original, ok := originalOption(order, n, display); ok {
		return original
	}
	return -1
}

// inverse maps original index to display index.
func inverse(order []int, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	if len(order) != n {
		return out
	}
	for display, original := range order {
		if original >= 0 && original < n {
			out[original] = display
		}
	}
	return out
}

func originalOption(optionOrder []int, optionCount, display int) (int, bool) {
	if display < 0 {
		return 0, false
	}
	if len(optionOrder) == 0 {
		return display, display < optionCount
	}
	if display >= len(optionOrder) {
		return 0, false
	}
	return optionOrder[display], true
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func joinMatches(m map[int]int) string {
	lefts := make([]int, 0, len(m))
	for l := range m {
		lefts = append(lefts, l)
	}
	sort.Ints(lefts)
	parts := make([]string, len(lefts))
	for i, l := range lefts {
		parts[i] = fmt.Sprintf("%d-%d", l, m[l])
	}
	return strings.Join(parts, ",")
}
