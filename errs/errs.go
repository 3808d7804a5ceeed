// Package errs defines the typed errors returned by worktree, integration and
// cleanup operations. Every error carries a Kind for coarse handling and a Code
// for the specific failed precondition, plus enough context (branch, files,
// remediation commands) to act on without a debugger.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindValidation means a precondition failed before anything was mutated.
	KindValidation Kind = "validation"
	// KindNotFound means no matching worktree or branch exists.
	KindNotFound Kind = "not_found"
	// KindExecution means an underlying command failed.
	KindExecution Kind = "execution"
	// KindConflict means rebase conflicts survived automated resolution.
	KindConflict Kind = "conflict"
)

// Code identifies the specific failure.
type Code string

const (
	PathExists               Code = "PathExists"
	UncommittedChanges       Code = "UncommittedChanges"
	PrimaryWorktree          Code = "PrimaryWorktree"
	ProtectedBranch          Code = "ProtectedBranch"
	TrunkMissing             Code = "TrunkMissing"
	DirtyWorkingTree         Code = "DirtyWorkingTree"
	NotFastForwardable       Code = "NotFastForwardable"
	NoPrimaryWorktreeOnTrunk Code = "NoPrimaryWorktreeOnTrunk"
	UnexpectedBranch         Code = "UnexpectedBranch"
	ConflictsUnresolved      Code = "ConflictsUnresolved"
	MergeFailed              Code = "MergeFailed"
	RebaseFailed             Code = "RebaseFailed"
	NoRebaseInProgress       Code = "NoRebaseInProgress"
	BranchUnmerged           Code = "BranchUnmerged"
	PortStillBound           Code = "PortStillBound"
	WorktreeNotFound         Code = "WorktreeNotFound"
	CommandFailed            Code = "CommandFailed"
	ProviderFailed           Code = "ProviderFailed"
	InvalidBranchName        Code = "InvalidBranchName"
	InvalidIdentifier        Code = "InvalidIdentifier"
)

// Error is the error type returned across hatchery packages.
type Error struct {
	Kind    Kind
	Code    Code
	Op      string // operation that failed, e.g. "git.RemoveWorktree"
	Message string
	Detail  string   // raw diagnostic text, such as a command's stderr
	Files   []string // conflicted or changed paths, when relevant
	// Remediation lists commands the operator can run to recover.
	Remediation []string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil && e.Message == "" {
		b.WriteString(e.Err.Error())
	}
	if len(e.Files) > 0 {
		b.WriteString("\n\nFiles:\n")
		for _, f := range e.Files {
			b.WriteString("  ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	if len(e.Remediation) > 0 {
		if len(e.Files) == 0 {
			b.WriteString("\n")
		}
		b.WriteString("\nTo resolve:\n")
		for _, r := range e.Remediation {
			b.WriteString("  ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Code, so sentinel comparisons like
// errors.Is(err, &errs.Error{Code: errs.ProtectedBranch}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Validation builds a validation error.
func Validation(op string, code Code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(op string, code Code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Execution wraps a failed command. stderr is trimmed and kept as Detail.
func Execution(op string, code Code, err error, stderr []byte, format string, args ...any) *Error {
	return &Error{
		Kind:    KindExecution,
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Detail:  strings.TrimSpace(string(stderr)),
		Err:     err,
	}
}

// Conflict builds a conflict error listing files and remediation steps.
func Conflict(op string, code Code, files, remediation []string, format string, args ...any) *Error {
	return &Error{
		Kind:        KindConflict,
		Code:        code,
		Op:          op,
		Message:     fmt.Sprintf(format, args...),
		Files:       files,
		Remediation: remediation,
	}
}

// WithRemediation returns e with the given remediation commands appended.
func (e *Error) WithRemediation(cmds ...string) *Error {
	e.Remediation = append(e.Remediation, cmds...)
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
