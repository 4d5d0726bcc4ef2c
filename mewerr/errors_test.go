package mewerr

import (
	"errors"
	"strings"
	"testing"

	"github.com/bdjafer/mew/ast"
)

func TestErrorStringIncludesCodeAndDetail(t *testing.T) {
	e := New("E2001", CategoryType, ErrTypeMismatch, "attribute \"age\" expects Int")
	msg := e.Error()
	if !strings.Contains(msg, "E2001") || !strings.Contains(msg, "TypeError") || !strings.Contains(msg, "age") {
		t.Errorf("Error() = %q, missing expected fields", msg)
	}
}

func TestErrorStringIncludesLocationWhenSet(t *testing.T) {
	e := New("E2001", CategoryType, ErrTypeMismatch, "bad").WithLoc(ast.Location{Line: 3, Column: 7})
	msg := e.Error()
	if !strings.Contains(msg, "line 3") || !strings.Contains(msg, "col 7") {
		t.Errorf("Error() = %q, want it to mention the source location", msg)
	}
}

func TestIsMatchesSentinelNotDetail(t *testing.T) {
	e1 := New("E2001", CategoryType, ErrTypeMismatch, "detail one")
	e2 := New("E2002", CategoryType, ErrTypeMismatch, "detail two")
	if !Is(e1, ErrTypeMismatch) || !Is(e2, ErrTypeMismatch) {
		t.Error("Is should match on sentinel Type regardless of Code/Detail")
	}
	if Is(e1, ErrNotFound) {
		t.Error("Is should not match a different sentinel")
	}
}

func TestIsReturnsFalseForNonMewerrError(t *testing.T) {
	if Is(errors.New("plain error"), ErrNotFound) {
		t.Error("Is should be false for a non-*Error value")
	}
}

func TestWithHintsAndContextChain(t *testing.T) {
	e := New("E1", CategoryLimit, ErrTimeout, "slow").
		WithHints("reduce scope", "add LIMIT").
		WithContext(map[string]interface{}{"matches": 42})
	if len(e.Hints) != 2 || e.Hints[0] != "reduce scope" {
		t.Errorf("Hints = %v, want 2 hints starting with \"reduce scope\"", e.Hints)
	}
	if e.Context["matches"] != 42 {
		t.Errorf("Context[matches] = %v, want 42", e.Context["matches"])
	}
}
