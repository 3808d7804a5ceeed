package cleanup

import "github.com/zhubert/hatchery/identifier"

// Kind names the resource an Operation acted on.
type Kind string

const (
	KindDevProcess  Kind = "dev-process"
	KindWorktree    Kind = "worktree"
	KindBranch      Kind = "branch"
	KindCLISymlinks Kind = "cli-symlinks"
	KindDatabase    Kind = "database"
)

// Operation records one cleanup step.
type Operation struct {
	Kind    Kind
	Success bool
	Message string
	Err     error
	Deleted bool // something was actually removed or stopped
}

// Result collects the operations of one cleanup run in the order they ran.
type Result struct {
	OperationID  string
	Identifier   identifier.Parsed
	WorktreePath string
	Branch       string
	DryRun       bool
	Operations   []Operation
	Success      bool
}

func (r *Result) record(op Operation) {
	r.Operations = append(r.Operations, op)
	r.Success = r.succeeded()
}

func (r *Result) succeeded() bool {
	if len(r.Operations) == 0 {
		return false
	}
	for _, op := range r.Operations {
		if !op.Success {
			return false
		}
	}
	return true
}

// Operation returns the recorded operation of the given kind.
func (r *Result) Operation(kind Kind) (Operation, bool) {
	for _, op := range r.Operations {
		if op.Kind == kind {
			return op, true
		}
	}
	return Operation{}, false
}

// Errors returns the errors of every failed operation.
func (r *Result) Errors() []error {
	var out []error
	for _, op := range r.Operations {
		if op.Err != nil {
			out = append(out, op.Err)
		}
	}
	return out
}

func succeeded(kind Kind, msg string, deleted bool) Operation {
	return Operation{Kind: kind, Success: true, Message: msg, Deleted: deleted}
}

func failed(kind Kind, msg string, err error) Operation {
	return Operation{Kind: kind, Message: msg, Err: err}
}
