/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yamdb/apiserver/internal/logging"
	"github.com/yamdb/apiserver/internal/mailer"
	"github.com/yamdb/apiserver/internal/mq"
)

// mailerCmd drains the confirmation email queue over SMTP.
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Deliver queued confirmation emails",
	Long: `Consumes the MAIL_QUEUE channel of the configured message queue and
sends every message over SMTP. Use together with MAIL_BACKEND=queue on the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer queue.Close()

		worker := mailer.NewWorker(mailer.NewSMTPSender(cfg.Mail))
		logging.Info().Str("queue", cfg.Mail.Queue).Str("backend", cfg.MQ.Backend).Msg("mailer started")

		err = queue.Subscribe(ctx, cfg.Mail.Queue, worker.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)
}
