package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")
	fix := FixAction{Type: RunCommand, Command: "cri list"}

	err := New(BackupNotFound, "backup not found", cause, fix)

	if err.Code != BackupNotFound {
		t.Errorf("Code = %v, want %v", err.Code, BackupNotFound)
	}
	if err.Message != "backup not found" {
		t.Errorf("Message = %q, want %q", err.Message, "backup not found")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestCriError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      WriteFailed,
			message:   "rename failed",
			cause:     errors.New("permission denied"),
			wantParts: []string{"WRITE_FAILED", "rename failed", "permission denied"},
		},
		{
			name:      "without cause",
			code:      TargetAmbiguous,
			message:   "2 candidates",
			wantParts: []string{"TARGET_AMBIGUOUS", "2 candidates"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitFailure},
		{"validation", New(ValidationFailed, "bad", nil), ExitFailure},
		{"tool missing", New(ToolMissing, "no bash", nil), ExitSkipped},
		{"wrapped tool missing", fmt.Errorf("validate: %w", New(ToolMissing, "x", nil)), ExitSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("apply: %w", New(PostWriteFailed, "reverted", nil))
	if !HasCode(err, PostWriteFailed) {
		t.Error("HasCode should see through wrapping")
	}
	if HasCode(err, Aborted) {
		t.Error("HasCode matched the wrong code")
	}
	if HasCode(nil, Aborted) {
		t.Error("HasCode(nil) should be false")
	}
}

func TestRestoreFix(t *testing.T) {
	fix := RestoreFix("20260101-000000.000000-42", "/ws/.meta/cri/backups/config.json.20260101-000000.000000-42")
	if fix.Type != RestoreBackup {
		t.Errorf("Type = %v, want %v", fix.Type, RestoreBackup)
	}
	if fix.Command != "cri rollback 20260101-000000.000000-42" {
		t.Errorf("Command = %q", fix.Command)
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(TargetAmbiguous); len(fixes) == 0 {
		t.Error("expected fixes for TargetAmbiguous")
	}
	if fixes := GetSuggestedFixes(InternalError); fixes != nil {
		t.Errorf("expected nil fixes for InternalError, got %v", fixes)
	}
}
