package collect

import (
	"strings"
	"testing"
)

func TestTailTruncate_KeepsTail(t *testing.T) {
	log := "setup\ncompile\nrun tests\nAssertionError: expected 4 got 3\nFAILED"
	got, truncated := TailTruncate(log, 2, 1<<20)
	if !truncated {
		t.Error("expected truncated=true")
	}
	if got != "AssertionError: expected 4 got 3\nFAILED" {
		t.Errorf("unexpected tail: %q", got)
	}
}

func TestTailTruncate_NoTruncationNeeded(t *testing.T) {
	log := "line one\nline two"
	got, truncated := TailTruncate(log, 10, 1<<20)
	if truncated {
		t.Error("expected truncated=false")
	}
	if got != log {
		t.Errorf("expected input unchanged, got %q", got)
	}
}

func TestTailTruncate_Idempotent(t *testing.T) {
	logs := []string{
		"a\nb\nc\nd\ne",
		"single long line without newlines at all, longer than budget",
		strings.Repeat("x", 100) + "\n" + strings.Repeat("y", 100),
		"",
	}
	for _, log := range logs {
		for _, maxLines := range []int{1, 2, 100} {
			for _, maxBytes := range []int{5, 50, 1000} {
				once, _ := TailTruncate(log, maxLines, maxBytes)
				twice, _ := TailTruncate(once, maxLines, maxBytes)
				if once != twice {
					t.Errorf("not idempotent (lines=%d bytes=%d): %q -> %q -> %q",
						maxLines, maxBytes, log, once, twice)
				}
			}
		}
	}
}

func TestTailTruncate_ByteBudgetCutsOldestLines(t *testing.T) {
	log := "aaaa\nbb"
	got, truncated := TailTruncate(log, 10, 3)
	if !truncated {
		t.Error("expected truncated=true")
	}
	if got != "bb" {
		t.Errorf("expected %q, got %q", "bb", got)
	}
}

func TestTailTruncate_SingleOversizedLine(t *testing.T) {
	log := "abcdefgh"
	got, truncated := TailTruncate(log, 10, 3)
	if !truncated {
		t.Error("expected truncated=true")
	}
	if got != "fgh" {
		t.Errorf("expected byte suffix %q, got %q", "fgh", got)
	}
}

func TestTailTruncate_ZeroBudget(t *testing.T) {
	got, truncated := TailTruncate("anything", 10, 0)
	if got != "" || !truncated {
		t.Errorf("expected empty truncated result, got %q truncated=%v", got, truncated)
	}
}
