package form

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xraph/formdispatch"
)

// AnswerChecker accepts or rejects a submitted answer list for a form.
type AnswerChecker interface {
	Check(f *Form, answers []any) error
}

// CheckerFunc adapts a function to AnswerChecker.
type CheckerFunc func(f *Form, answers []any) error

// Check calls fn.
func (fn CheckerFunc) Check(f *Form, answers []any) error { return fn(f, answers) }

// question is the subset of a question definition the default checker
// understands.
type question struct {
	Required bool `json:"required"`
}

// DefaultChecker requires one answer per question and a non-empty answer
// for every question marked required.
func DefaultChecker() AnswerChecker {
	return CheckerFunc(checkAnswers)
}

func checkAnswers(f *Form, answers []any) error {
	var questions []question
	if len(bytes.TrimSpace(f.Questions)) > 0 {
		if err := json.Unmarshal(f.Questions, &questions); err != nil {
			return fmt.Errorf("%w: form %s has unreadable questions: %v", formdispatch.ErrInvalidAnswers, f.ID, err)
		}
	}

	if len(answers) != len(questions) {
		return fmt.Errorf("%w: got %d answers for %d questions", formdispatch.ErrInvalidAnswers, len(answers), len(questions))
	}

	for i, q := range questions {
		if q.Required && isEmpty(answers[i]) {
			return fmt.Errorf("%w: question %d is required", formdispatch.ErrInvalidAnswers, i)
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch a := v.(type) {
	case nil:
		return true
	case string:
		return a == ""
	case []any:
		return len(a) == 0
	case map[string]any:
		return len(a) == 0
	default:
		return false
	}
}
