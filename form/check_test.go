package form_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/form"
)

func TestDefaultChecker(t *testing.T) {
	f := &form.Form{
		ID:        "f1",
		Questions: json.RawMessage(`[{"type":"text","required":true},{"type":"choice"}]`),
	}

	tests := []struct {
		name    string
		answers []any
		wantErr bool
	}{
		{"all answered", []any{"hello", "b"}, false},
		{"optional left empty", []any{"hello", nil}, false},
		{"required empty string", []any{"", "b"}, true},
		{"required nil", []any{nil, "b"}, true},
		{"too few", []any{"hello"}, true},
		{"too many", []any{"hello", "b", "c"}, true},
	}

	checker := form.DefaultChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Check(f, tt.answers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, formdispatch.ErrInvalidAnswers) {
				t.Errorf("expected ErrInvalidAnswers, got %v", err)
			}
		})
	}
}

func TestDefaultChecker_NoQuestions(t *testing.T) {
	f := &form.Form{ID: "empty"}
	if err := form.DefaultChecker().Check(f, nil); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := form.DefaultChecker().Check(f, []any{"x"}); err == nil {
		t.Fatal("expected error for answer without question")
	}
}

func TestCheckerFunc(t *testing.T) {
	called := false
	c := form.CheckerFunc(func(*form.Form, []any) error {
		called = true
		return nil
	})
	if err := c.Check(&form.Form{}, nil); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !called {
		t.Error("function not called")
	}
}
