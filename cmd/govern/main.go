package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliuyar1234/govern/internal/app"
	"github.com/aliuyar1234/govern/internal/config"
	"github.com/aliuyar1234/govern/internal/voting"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const sweepTimeout = 2 * time.Minute

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		os.Exit(runAdmin(os.Args[2:]))
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	scheduler, err := setupVoteSweep(cfg.VoteSweepSchedule, application.Services.Voting)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to schedule vote sweep: %v\n", err)
		os.Exit(1)
	}
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Start()
	}()

	select {
	case err := <-errChan:
		<-scheduler.Stop().Done()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			os.Exit(1)
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		<-scheduler.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
			os.Exit(1)
		}
	}
}

// setupVoteSweep closes OPEN votes whose closes_at has passed. A sweep that is
// still running when the next tick fires is skipped.
func setupVoteSweep(schedule string, svc *voting.Service) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Vote sweep panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		result, err := svc.CloseOverdueVotes(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Vote sweep failed")
			return
		}
		if result.FirstError != nil {
			log.Warn().
				Err(result.FirstError).
				Int("failed", result.FailedCount).
				Msg("Vote sweep left votes open")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule vote sweep: %w", err)
	}

	return c, nil
}
