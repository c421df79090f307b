package chat

import (
	"strings"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

// DecisionKind is the outcome of one policy evaluation.
type DecisionKind int

const (
	// DecideClarify asks the user a follow-up question.
	DecideClarify DecisionKind = iota
	// DecideRecommend proceeds to the recommendation gateway.
	DecideRecommend
	// DecideOffTopic short-circuits with the extraction stage's canned reply.
	DecideOffTopic
)

// Decision is what the policy chose to do with this turn.
type Decision struct {
	Kind     DecisionKind
	Question string // set for DecideClarify
	Message  string // set for DecideOffTopic
}

// ClarificationPolicy decides between clarifying, recommending and the
// off-topic short circuit. It owns loop detection: the attempt counter and
// the two ring buffers bound how long the clarification loop can run, so a
// Recommend is always forced within MaxAttempts turns.
type ClarificationPolicy struct {
	// MaxAttempts is the consecutive-clarification budget (K).
	MaxAttempts int
}

// NewClarificationPolicy returns a policy with the given attempt budget.
func NewClarificationPolicy(maxAttempts int) *ClarificationPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ClarificationPolicy{MaxAttempts: maxAttempts}
}

// clarifyingQuestions maps each sparse dimension to its canned question, in
// priority order.
var clarifyingQuestions = []struct {
	attr     domain.Attribute
	question string
}{
	{domain.AttrMake, "Are there any makes you prefer? For example Toyota, BMW or Tesla."},
	{domain.AttrVehicleType, "What type of vehicle suits you best? An SUV, a sedan, a hatchback?"},
	{"price", "Do you have a budget in mind for this purchase?"},
}

// Decide evaluates the state machine for one turn and updates the counters
// and ring buffers on state in place. turnAddedSignal reports whether the
// merge step added at least one new confirmed or rejected value.
func (p *ClarificationPolicy) Decide(state *domain.DialogueState, e *ExtractionResult, turnAddedSignal bool) Decision {
	// Off-topic short-circuits everything and leaves the clarification
	// counters untouched.
	if e.IsOffTopic {
		return Decision{Kind: DecideOffTopic, Message: e.OffTopicResponse}
	}

	if turnAddedSignal {
		state.ClarificationAttempts = 0
	}

	budgetLeft := state.ClarificationAttempts < p.MaxAttempts

	// A ready-made question from the extraction stage takes precedence over
	// our own question selection, but it still spends the attempt budget and
	// is suppressed when the very same question was recently asked.
	if s := e.RetrieverSuggestion; s != "" && budgetLeft && !state.RecentlyAskedQuestion(s) {
		state.RecordClarification(string(impliedAttribute(s)), s, p.MaxAttempts)
		state.ClarificationAttempts++
		return Decision{Kind: DecideClarify, Question: s}
	}

	if budgetLeft && isSparse(state) {
		for _, q := range clarifyingQuestions {
			if state.RecentlyAskedAbout(q.attr) {
				continue
			}
			state.RecordClarification(string(q.attr), q.question, p.MaxAttempts)
			state.ClarificationAttempts++
			return Decision{Kind: DecideClarify, Question: q.question}
		}
	}

	// Forced exit: budget exhausted, every useful dimension recently asked,
	// or the criteria are usable. The loop always terminates here.
	state.ClarificationAttempts = 0
	return Decision{Kind: DecideRecommend}
}

// isSparse reports whether the accumulated criteria are too thin to produce
// a useful recommendation: no make, body type or price signal across the
// whole session.
func isSparse(state *domain.DialogueState) bool {
	working := state.Working()
	if working.HasMake() || working.HasVehicleType() || working.HasPrice() {
		return false
	}
	// Explicit rejections are signal too: a user who ruled out SUVs has
	// said something about body type.
	if len(state.Rejected[domain.AttrMake]) > 0 || len(state.Rejected[domain.AttrVehicleType]) > 0 {
		return false
	}
	return true
}

// impliedAttribute guesses which dimension a retriever-suggested question is
// about so it can participate in loop detection. Unrecognized questions
// return "" and only the literal-question buffer applies.
func impliedAttribute(question string) domain.Attribute {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "make") || strings.Contains(q, "brand") || strings.Contains(q, "manufacturer"):
		return domain.AttrMake
	case strings.Contains(q, "type") || strings.Contains(q, "suv") || strings.Contains(q, "sedan") || strings.Contains(q, "body"):
		return domain.AttrVehicleType
	case strings.Contains(q, "price") || strings.Contains(q, "budget") || strings.Contains(q, "spend") || strings.Contains(q, "afford"):
		return "price"
	case strings.Contains(q, "fuel") || strings.Contains(q, "electric") || strings.Contains(q, "hybrid") || strings.Contains(q, "diesel"):
		return domain.AttrFuelType
	case strings.Contains(q, "year") || strings.Contains(q, "old") || strings.Contains(q, "new"):
		return "year"
	default:
		return ""
	}
}
