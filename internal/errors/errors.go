package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// WorkspaceUnscoped indicates no workspace was detected and the global root is in use
	WorkspaceUnscoped ErrorCode = "WORKSPACE_UNSCOPED"
	// TargetNotFound indicates no eligible target file was found
	TargetNotFound ErrorCode = "TARGET_NOT_FOUND"
	// TargetAmbiguous indicates more than one eligible target file was found
	TargetAmbiguous ErrorCode = "TARGET_AMBIGUOUS"
	// TargetInvalid indicates the target is a symlink, not regular, outside the workspace, or not accessible
	TargetInvalid ErrorCode = "TARGET_INVALID"
	// InputTooLarge indicates proposed content exceeded the input cap
	InputTooLarge ErrorCode = "INPUT_TOO_LARGE"
	// ValidationFailed indicates proposed content failed validation
	ValidationFailed ErrorCode = "VALIDATION_FAILED"
	// PostWriteFailed indicates the live file failed validation after a write
	PostWriteFailed ErrorCode = "POST_WRITE_FAILED"
	// BackupNotFound indicates a requested backup does not exist
	BackupNotFound ErrorCode = "BACKUP_NOT_FOUND"
	// WriteFailed indicates the live file could not be replaced
	WriteFailed ErrorCode = "WRITE_FAILED"
	// Aborted indicates the user declined a confirmation
	Aborted ErrorCode = "ABORTED"
	// DaemonRunning indicates a watch daemon is already running for the workspace
	DaemonRunning ErrorCode = "DAEMON_RUNNING"
	// DaemonNotRunning indicates no watch daemon is running for the workspace
	DaemonNotRunning ErrorCode = "DAEMON_NOT_RUNNING"
	// ToolMissing indicates optional tooling is unavailable; the operation was skipped
	ToolMissing ErrorCode = "TOOL_MISSING"
	// InvalidArgument indicates bad user input
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitSkipped = 2
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// RestoreBackup suggests restoring a specific backup
	RestoreBackup FixActionType = "restore-backup"
	// InstallTool suggests installing a tool
	InstallTool FixActionType = "install-tool"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	Path        string        `json:"path,omitempty"`
	Tool        string        `json:"tool,omitempty"`
}

// CriError represents a cri error with code, message, and recovery suggestions
type CriError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new CriError
func New(code ErrorCode, message string, cause error, suggestedFixes ...FixAction) *CriError {
	return &CriError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes,
	}
}

// Newf creates a CriError without a cause from a format string.
func Newf(code ErrorCode, format string, args ...interface{}) *CriError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *CriError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CriError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *CriError) WithDetails(details interface{}) *CriError {
	e.Details = details
	return e
}

// WithFix appends a suggested fix.
func (e *CriError) WithFix(fix FixAction) *CriError {
	e.SuggestedFixes = append(e.SuggestedFixes, fix)
	return e
}

// RestoreFix builds the recovery action for restoring a named backup.
func RestoreFix(backupID, backupPath string) FixAction {
	return FixAction{
		Type:        RestoreBackup,
		Command:     "cri rollback " + backupID,
		Safe:        true,
		Description: "Restore the pre-change content from backup",
		Path:        backupPath,
	}
}

// CodeOf returns the code of the first CriError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *CriError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if CodeOf(err) == ToolMissing {
		return ExitSkipped
	}
	return ExitFailure
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	TargetAmbiguous: {
		{
			Type:        RunCommand,
			Command:     "cri <command> --file <path>",
			Safe:        true,
			Description: "Name the target file explicitly",
		},
	},
	TargetNotFound: {
		{
			Type:        RunCommand,
			Command:     "cri <command> --file <path>",
			Safe:        true,
			Description: "Name the target file explicitly",
		},
	},
	DaemonRunning: {
		{
			Type:        RunCommand,
			Command:     "cri watch stop",
			Safe:        true,
			Description: "Stop the running watcher first",
		},
	},
	WorkspaceUnscoped: {
		{
			Type:        RunCommand,
			Command:     "cri init --dir <workspace>",
			Safe:        true,
			Description: "Mark the workspace root explicitly",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
