// Package exec provides an abstraction over command execution for testability.
// Production code runs git, lsof, neonctl and claude through RealExecutor, while
// tests inject a MockExecutor that returns pre-recorded responses and records
// every invocation so callers can assert which commands were (not) issued.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"slices"
	"sync"
)

// CommandExecutor abstracts command execution for testability.
// Production code uses RealExecutor, while tests use MockExecutor.
type CommandExecutor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// Output executes a command and returns stdout, or error with stderr context.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// CombinedOutput executes a command and returns combined stdout+stderr.
	CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// RealExecutor executes commands using os/exec. Every command inherits the
// current environment plus the extra variables it was created with.
type RealExecutor struct {
	env []string
}

// NewRealExecutor returns a RealExecutor adding env ("KEY=value") to each
// command's environment.
func NewRealExecutor(env ...string) *RealExecutor {
	return &RealExecutor{env: slices.Clone(env)}
}

// NonInteractiveGitEnv stops git from waiting on a terminal: no credential
// prompts and no editor for rebase --continue.
var NonInteractiveGitEnv = []string{"GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true"}

func (e *RealExecutor) command(ctx context.Context, dir, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}
	return cmd
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := e.command(ctx, dir, name, args)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Output executes a command and returns stdout. A failure is an
// *exec.ExitError whose Stderr holds the command's stderr.
func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return e.command(ctx, dir, name, args).Output()
}

// CombinedOutput executes a command and returns combined stdout+stderr.
func (e *RealExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return e.command(ctx, dir, name, args).CombinedOutput()
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(dir, name string, args []string) bool

// MockRule defines a matching rule and its responses. A rule with several
// responses answers them in order and keeps repeating the last one.
type MockRule struct {
	Match     CommandMatcher
	Responses []MockResponse
	hits      int
}

func (r *MockRule) next() MockResponse {
	i := min(r.hits, len(r.Responses)-1)
	r.hits++
	return r.Responses[i]
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

// HasPrefix reports whether the call is name followed by the given leading args.
func (c MockCall) HasPrefix(name string, prefixArgs ...string) bool {
	if c.Name != name || len(c.Args) < len(prefixArgs) {
		return false
	}
	return slices.Equal(c.Args[:len(prefixArgs)], prefixArgs)
}

// MockExecutor returns pre-recorded responses for commands.
// Commands are matched in order of rule registration.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []*MockRule
	calls    []MockCall
	fallback CommandExecutor
}

// NewMockExecutor creates a new MockExecutor.
// If fallback is provided, unmatched commands will be delegated to it.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{
		fallback: fallback,
	}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.AddSequence(match, response)
}

// AddSequence adds a rule that answers successive matching calls with the
// given responses in order, repeating the final response once exhausted.
func (e *MockExecutor) AddSequence(match CommandMatcher, responses ...MockResponse) {
	if len(responses) == 0 {
		responses = []MockResponse{{}}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &MockRule{Match: match, Responses: responses})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(ExactMatcher(name, args...), response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(PrefixMatcher(name, prefixArgs...), response)
}

// ExactMatcher matches name invoked with exactly args.
func ExactMatcher(name string, args ...string) CommandMatcher {
	return func(dir, n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}
}

// PrefixMatcher matches name invoked with args starting with prefixArgs.
func PrefixMatcher(name string, prefixArgs ...string) CommandMatcher {
	return func(dir, n string, a []string) bool {
		return MockCall{Name: n, Args: a}.HasPrefix(name, prefixArgs...)
	}
}

// InDir narrows a matcher to commands run from dir.
func InDir(dir string, match CommandMatcher) CommandMatcher {
	return func(d, n string, a []string) bool {
		return d == dir && match(d, n, a)
	}
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]MockCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// CallsWithPrefix returns the recorded invocations of name starting with prefixArgs.
func (e *MockExecutor) CallsWithPrefix(name string, prefixArgs ...string) []MockCall {
	var matched []MockCall
	for _, c := range e.GetCalls() {
		if c.HasPrefix(name, prefixArgs...) {
			matched = append(matched, c)
		}
	}
	return matched
}

// ClearCalls clears the recorded command invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// respond records the call and returns the matching response, if any.
func (e *MockExecutor) respond(dir, name string, args []string) (MockResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, MockCall{Dir: dir, Name: name, Args: slices.Clone(args)})
	for _, rule := range e.rules {
		if rule.Match(dir, name, args) {
			return rule.next(), true
		}
	}
	return MockResponse{}, false
}

// Run executes a mocked command.
func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	if resp, ok := e.respond(dir, name, args); ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}

	if e.fallback != nil {
		return e.fallback.Run(ctx, dir, name, args...)
	}

	// Default: return empty success
	return nil, nil, nil
}

// Output executes a mocked command.
func (e *MockExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	if resp, ok := e.respond(dir, name, args); ok {
		return resp.Stdout, resp.Err
	}

	if e.fallback != nil {
		return e.fallback.Output(ctx, dir, name, args...)
	}

	return nil, nil
}

// CombinedOutput executes a mocked command.
func (e *MockExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	if resp, ok := e.respond(dir, name, args); ok {
		combined := append(slices.Clone(resp.Stdout), resp.Stderr...)
		return combined, resp.Err
	}

	if e.fallback != nil {
		return e.fallback.CombinedOutput(ctx, dir, name, args...)
	}

	return nil, nil
}

// Ensure implementations satisfy the interface.
var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)
