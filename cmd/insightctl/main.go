// Package main provides insightctl, the operator tool for insight documents
// and the session audit trail.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/clinical-intel/internal/domain/session"
	"github.com/drfirst/clinical-intel/internal/infrastructure/redpanda"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/patient"
)

const defaultInsightsPath = "data/ai_insights.json"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// Flags below default from the environment, as the server does.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "insightctl",
		Short:         "Inspect and load clinical insight documents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("file", envOr("INSIGHTS_PATH", defaultInsightsPath), "Path to the insight document")

	rootCmd.AddCommand(lintCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(auditCmd())
	return rootCmd
}

// errIssues makes lint exit non-zero after printing the findings.
var errIssues = errors.New("insight document has issues")

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Parse and validate the insight document",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			_, issues, err := insight.NewStore(path, nil).Check(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, issue := range issues {
				fmt.Fprintln(out, issue.String())
			}
			if len(issues) > 0 {
				return fmt.Errorf("%w: %d found", errIssues, len(issues))
			}
			fmt.Fprintf(out, "%s: ok\n", path)
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <section> <key>",
		Short: "Print one insight as JSON, or the placeholder when it is missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			v := insight.NewStore(path, nil).Get(cmd.Context(), args[0], args[1])
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load patient_records from the insight document into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			dsn, _ := cmd.Flags().GetString("database-url")
			if dsn == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}

			doc, _, err := insight.NewStore(path, nil).Check(cmd.Context())
			if err != nil {
				return err
			}
			records := doc.Section(insight.SectionPatientRecords)
			if !records.Is(insight.KindTable) {
				return fmt.Errorf("%s has no %s section", path, insight.SectionPatientRecords)
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			n, err := seed(cmd.Context(), dsn, records, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d patient records\n", n)
			return nil
		},
	}
	cmd.Flags().String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	return cmd
}

func seed(ctx context.Context, dsn string, records insight.Value, logger *zap.Logger) (int, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	catalog := patient.NewPostgresCatalog(pool, logger)
	if err := catalog.Migrate(ctx); err != nil {
		return 0, err
	}
	return catalog.Upsert(ctx, records)
}

// errAuditLimit stops the consumer once --limit events were printed.
var errAuditLimit = errors.New("limit reached")

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Follow session events published by the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			brokers, _ := cmd.Flags().GetStringSlice("brokers")
			topic, _ := cmd.Flags().GetString("topic")
			fromStart, _ := cmd.Flags().GetBool("from-start")
			limit, _ := cmd.Flags().GetInt("limit")
			if len(brokers) == 0 {
				return errors.New("--brokers or AUDIT_BROKERS is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			seen := 0
			consumer, err := redpanda.NewConsumer(redpanda.ConsumerConfig{
				Brokers:   brokers,
				Topic:     topic,
				FromStart: fromStart,
			}, func(_ context.Context, ev *session.Event) error {
				fmt.Fprintln(out, formatEvent(ev))
				seen++
				if limit > 0 && seen >= limit {
					return errAuditLimit
				}
				return nil
			}, nil)
			if err != nil {
				return err
			}
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, errAuditLimit) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("brokers", splitList(os.Getenv("AUDIT_BROKERS")), "Broker addresses")
	cmd.Flags().String("topic", envOr("AUDIT_TOPIC", redpanda.TopicSessionAudit), "Audit topic")
	cmd.Flags().Bool("from-start", false, "Replay retained events first")
	cmd.Flags().Int("limit", 0, "Stop after this many events (0 follows forever)")
	return cmd
}

func formatEvent(ev *session.Event) string {
	line := fmt.Sprintf("%s %-16s session=%s %s->%s v%d",
		ev.Timestamp.UTC().Format(time.RFC3339), ev.EventType, ev.SessionID, ev.From, ev.To, ev.Version)
	if ev.Username != "" {
		line += " user=" + ev.Username
	}
	if ev.PatientID != "" {
		line += " patient=" + ev.PatientID
	}
	return line
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
