/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fitgoals/apiserver/config"
	"github.com/fitgoals/apiserver/internal/logging"
	"github.com/fitgoals/apiserver/internal/mq"
	"github.com/fitgoals/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect goal lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log goal events from the configured broker until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.FromConfig(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("init mq: %w", err)
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		logger.Info("tailing goal events", "backend", broker.Backend(), "topic", cfg.MQ.GoalTopic)
		err = broker.Subscribe(ctx, cfg.MQ.GoalTopic, func(ctx context.Context, msg mq.Message) error {
			var event services.GoalEvent
			if err := msg.Decode(&event); err != nil {
				// Malformed payloads are acked so they do not loop forever.
				logger.WarnContext(ctx, "skip goal event", "message_id", msg.ID, "error", err)
				return nil
			}
			logger.InfoContext(ctx, "goal event",
				"message_id", msg.ID,
				"event_type", event.Type,
				"goal_id", event.GoalID,
				"user_id", event.UserID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
