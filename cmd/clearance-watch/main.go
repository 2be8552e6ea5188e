package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/client"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/internal/service"
	"github.com/noah-isme/sma-clearance-api/pkg/config"
	"github.com/noah-isme/sma-clearance-api/pkg/events"
	"github.com/noah-isme/sma-clearance-api/pkg/logger"
)

var (
	flagAPIURL   string
	flagToken    string
	flagInterval time.Duration
	flagStudent  string
	flagSemester string

	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "clearance-watch",
	Short:         "Follow a student's clearance approvals from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Print the current approval items once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, semester, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		api := client.New(cfg.APIURL, cfg.APIToken)
		record, err := api.FetchAggregate(cmd.Context(), flagStudent, semester)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), record)
		printItems(cmd.OutOrStdout(), record.Items())
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll approval items and print status changes as they happen",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, semester, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		logr, err := logger.NewCLI(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logr.Sync() //nolint:errcheck

		// a poll never outlives its slot, so a hung request cannot stall later merges
		api := client.New(cfg.APIURL, cfg.APIToken, client.WithHTTPClient(&http.Client{Timeout: cfg.PollInterval}))
		reconciler, hub, metrics := newReconciler(logr)
		sub := hub.Subscribe(16)
		defer hub.Unsubscribe(sub)

		if flagMetricsAddr != "" {
			stopMetrics := serveMetrics(flagMetricsAddr, metrics, logr)
			defer stopMetrics()
		}
		return follow(cmd.Context(), cmd.OutOrStdout(), logr, reconciler, sub, api, semester, cfg.PollInterval)
	},
}

// newReconciler builds the client-side collection with its own hub and counters.
func newReconciler(logr *zap.Logger) (*service.Reconciler, *events.Hub, *service.MetricsService) {
	hub := events.NewHub(logr)
	metrics := service.NewMetricsService()
	reconciler := service.NewReconciler(logr, service.WithReconcilerHub(hub), service.WithReconcilerMetrics(metrics))
	return reconciler, hub, metrics
}

// follow polls in the background and prints the items on every batch of status changes
// until the context ends.
func follow(ctx context.Context, out io.Writer, logr *zap.Logger, reconciler *service.Reconciler, sub *events.Subscription, source service.ItemSource, semester models.Semester, interval time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- reconciler.Run(ctx, source, flagStudent, semester, interval)
	}()

	logr.Info("watching clearance",
		zap.String("student_id", flagStudent),
		zap.String("semester", string(semester)),
		zap.Duration("interval", interval),
	)
	first := len(reconciler.Items()) == 0
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case evt := <-sub.Events:
			if first {
				printItems(out, reconciler.Items())
				first = false
				continue
			}
			fmt.Fprintf(out, "%s  %s %s changed: %s\n",
				evt.OccurredAt.Local().Format(time.TimeOnly), evt.StudentID, evt.Semester, strings.Join(evt.EntityIDs, ", "))
			printItems(out, reconciler.Items())
		}
	}
}

// serveMetrics exposes the watcher's Prometheus counters until the returned func is called.
func serveMetrics(addr string, metrics *service.MetricsService, logr *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Warn("metrics listener stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Base URL of the clearance API (default $CLEARANCE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Bearer token (default $CLEARANCE_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagStudent, "student", "", "Student ID")
	rootCmd.PersistentFlags().StringVar(&flagSemester, "semester", "1st", "Semester (1st or 2nd)")
	watchCmd.Flags().DurationVar(&flagInterval, "interval", 0, "Poll interval (default $CLEARANCE_POLL_INTERVAL)")
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve watcher metrics on this address, e.g. :9102")
	_ = rootCmd.MarkPersistentFlagRequired("student")

	rootCmd.AddCommand(itemsCmd, watchCmd, submitCmd)
}

func resolveSettings(cmd *cobra.Command) (*config.WatchConfig, models.Semester, error) {
	cfg := config.LoadWatch()
	if cmd.Flags().Changed("api-url") {
		cfg.APIURL = strings.TrimRight(flagAPIURL, "/")
	}
	if cmd.Flags().Changed("token") {
		cfg.APIToken = flagToken
	}
	if cmd.Flags().Changed("interval") && flagInterval > 0 {
		cfg.PollInterval = flagInterval
	}
	semester, ok := models.ParseSemester(flagSemester)
	if !ok {
		return nil, "", fmt.Errorf("invalid semester %q", flagSemester)
	}
	return cfg, semester, nil
}

func printSummary(out io.Writer, record *models.AggregateClearance) {
	name := record.StudentName
	if name == "" {
		name = record.StudentID
	}
	fmt.Fprintf(out, "%s  %s semester %s  %s\n\n", name, record.Semester, record.SchoolYear, record.Status)
}

func printItems(out io.Writer, items []models.ApprovalItem) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tENTITY\tSTATUS\tREJECTIONS\tREMARKS")
	for _, item := range items {
		status := string(item.Status)
		if item.UnderReEvaluation() {
			status = "Re-evaluation"
		}
		remarks := ""
		if item.Remarks != nil {
			remarks = *item.Remarks
		}
		name := item.EntityName
		if name == "" {
			name = item.EntityID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", item.EntityKind, name, status, item.RejectionCount, remarks)
	}
	_ = tw.Flush()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
