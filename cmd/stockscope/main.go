// File: cmd/stockscope/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stockscope/cmd"
	"stockscope/internal/observability"
)

const banner = `
   _____ __             __
  / ___// /_____  _____/ /_______________  ____  ___
  \__ \/ __/ __ \/ ___/ //_/ ___/ ___/ _ \/ __ \/ _ \
 ___/ / /_/ /_/ / /__/ ,< (__  ) /__/  __/ /_/ /  __/
/____/\__/\____/\___/_/|_/____/\___/\___/ .___/\___/
                                       /_/
  collect > compose > relay       try: collect 005930
`

// main is the entry point of the application.
func main() {
	defer observability.Sync()

	// Interrupt signals cancel the whole run, including an in-flight
	// browser session.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// If arguments are passed, execute the command directly and exit.
	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				os.Exit(0)
			}
			os.Exit(1)
		}
		return
	}

	// -- Interactive Mode --
	fmt.Print(banner)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("stockscope > ")
		if !scanner.Scan() {
			break // EOF (Ctrl+D)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		executeInteractiveCommand(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		os.Exit(1)
	}

	fmt.Println("Exiting stockscope.")
}

// executeInteractiveCommand parses and runs one command line from the
// interactive shell. A fresh command tree per line keeps flag state from
// leaking between invocations.
func executeInteractiveCommand(ctx context.Context, line string) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))

	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "Error: Command panicked: %v\n", r)
			}
		}()
		if err := rootCmd.ExecuteContext(ctx); err != nil {
			// Errors are logged by the command itself; the shell stays up.
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(os.Stderr, "\nCommand aborted.")
			}
		}
	}()
}
