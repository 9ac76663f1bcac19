package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	out := Table([]string{"Name", "State"}, [][]string{
		{"jazz", "idle"},
		{"rock", "running"},
	})

	for _, want := range []string{"Name", "State", "jazz", "rock", "running"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table to contain %q, got:\n%s", want, out)
		}
	}
	if lines := strings.Split(out, "\n"); len(lines) < 5 {
		t.Errorf("expected border, header and rows, got %d lines", len(lines))
	}
}

func TestKeyValues(t *testing.T) {
	out := KeyValues([][2]string{
		{"Name", "jazz"},
		{"Schedule", "manual"},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if strings.Index(lines[0], "jazz") != strings.Index(lines[1], "manual") {
		t.Errorf("expected values to be aligned:\n%s", out)
	}
}

func TestState(t *testing.T) {
	tests := []string{"idle", "due", "running", "succeeded", "failed", "unscheduled"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			if got := State(name); !strings.Contains(got, name) {
				t.Errorf("expected rendered state to contain %q, got %q", name, got)
			}
		})
	}
}

func TestMark(t *testing.T) {
	if !strings.Contains(Mark(true), "✓") {
		t.Error("expected check mark")
	}
	if !strings.Contains(Mark(false), "✗") {
		t.Error("expected cross")
	}
}
