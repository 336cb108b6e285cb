package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/meetings"
	"github.com/aliuyar1234/govern/internal/voting"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	case "close-overdue-votes":
		return runCloseOverdueVotes(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  govern admin migrate [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  govern admin close-overdue-votes [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to GV_DB_DSN.")
}

// dsnFlag parses --db-dsn for a subcommand. ok is false when the command
// should exit with code.
func dsnFlag(name string, args []string) (dsn string, code int, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&dsn, "db-dsn", "", "Postgres DSN (defaults to GV_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", 0, false
		}
		return "", 2, false
	}

	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("GV_DB_DSN"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set GV_DB_DSN)")
		return "", 2, false
	}
	return dsn, 0, true
}

func runMigrate(args []string) int {
	dsn, code, ok := dsnFlag("migrate", args)
	if !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Migrations applied.")
	return 0
}

// runCloseOverdueVotes runs one sweep synchronously. Side effects run inline
// because there is no background runner.
func runCloseOverdueVotes(args []string) int {
	dsn, code, ok := dsnFlag("close-overdue-votes", args)
	if !ok {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	auditor := audit.NewWriter(pool, nil)
	gate := meetings.NewService(pool, auditor, nil, nil).Gate()
	svc := voting.NewService(pool, auditor, nil, nil, gate)

	result, err := svc.CloseOverdueVotes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Closed %d overdue vote(s), %d failed.\n", result.ClosedCount, result.FailedCount)
	if result.FirstError != nil {
		fmt.Fprintf(os.Stderr, "First failure: %v\n", result.FirstError)
		return 1
	}
	return 0
}
