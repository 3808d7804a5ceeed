package agent

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	pexec "github.com/zhubert/hatchery/exec"
	"github.com/zhubert/hatchery/logger"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	code := m.Run()
	logger.Reset()
	os.Exit(code)
}

func TestClaudeCLI_Invoke(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	a := NewClaudeCLI(mock, "", time.Minute)

	if err := a.Invoke(context.Background(), "resolve it", InvokeOptions{WorkingDirectory: "/wt"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := mock.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Dir != "/wt" || !calls[0].HasPrefix("claude", "--print", "resolve it") {
		t.Errorf("unexpected call: %+v", calls[0])
	}
}

func TestClaudeCLI_Interactive(t *testing.T) {
	a := NewClaudeCLI(pexec.NewMockExecutor(nil), "claude", 0)
	args := a.Args("hi", InvokeOptions{Interactive: true})
	if args[0] != "hi" {
		t.Errorf("interactive runs should not use --print: %v", args)
	}
}

func TestClaudeCLI_Failure(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("claude", nil, pexec.MockResponse{
		Stdout: []byte("partial"),
		Err:    errors.New("exit status 1"),
	})
	a := NewClaudeCLI(mock, "claude", 0)

	if err := a.Invoke(context.Background(), "p", InvokeOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnavailable(t *testing.T) {
	if err := (Unavailable{}).Invoke(context.Background(), "p", InvokeOptions{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
