package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhubert/hatchery/logger"
)

func main() {
	err := run(os.Args)
	logger.Close()
	if err != nil {
		if !errors.Is(err, errNotSuccessful) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("hatchery error:"), err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand(args).ExecuteContext(ctx)
}
