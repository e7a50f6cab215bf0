package ticket

import (
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"empty", "", "", false},
		{"no reference", "fix the login page", "", false},
		{"lowercase key", "abc-123", "", false},
		{"missing number", "ABC-", "", false},
		{"missing key", "-123", "", false},
		{"branch name", "feature/ABC-123-fix", "ABC-123", true},
		{"exact", "ABC-1", "ABC-1", true},
		{"leftmost of several", "see ABC-1 and XYZ-2", "ABC-1", true},
		{"embedded in word", "fooABC-12bar", "ABC-12", true},
		{"mixed case prefix", "AbC-9", "C-9", true},
		{"non-ascii around", "ü→ PROJ-42 ✓", "PROJ-42", true},
		{"multiline description", "Summary\n\nRelates to OPS-7\nand OPS-8", "OPS-7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Extract(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtract_LongInput(t *testing.T) {
	text := strings.Repeat("x", 1<<20) + "LONG-1" + strings.Repeat("y", 1<<10)

	got, ok := Extract(text)
	if !ok || got != "LONG-1" {
		t.Errorf("expected LONG-1, got (%q, %v)", got, ok)
	}
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key         string
		wantProject string
		wantNumber  int
		wantOK      bool
	}{
		{"ENG-123", "ENG", 123, true},
		{"ABC-007", "ABC", 7, true},
		{"ENG", "", 0, false},
		{"eng-1", "", 0, false},
		{"ENG-", "", 0, false},
		{"see ENG-1", "", 0, false},
		{"ENG-99999999999999999999", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			project, number, ok := SplitKey(tt.key)
			if project != tt.wantProject || number != tt.wantNumber || ok != tt.wantOK {
				t.Errorf("SplitKey(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.key, project, number, ok, tt.wantProject, tt.wantNumber, tt.wantOK)
			}
		})
	}
}
