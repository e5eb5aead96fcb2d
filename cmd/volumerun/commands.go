package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/volumerun/internal/application/optimizer"
	"github.com/sawpanic/volumerun/internal/interfaces/alerts"
	httpserver "github.com/sawpanic/volumerun/internal/interfaces/http"
	"github.com/sawpanic/volumerun/internal/interfaces/output"
)

func newCalculateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calculate <creator_id>",
		Short: "Calculate the optimized weekly volume of one creator",
		Long: `Runs the full pipeline for one creator and prints the result as JSON:
scores, fusion, confidence, tier volume, elasticity cap, day-of-week schedule,
content allocation and caption readiness. With --save the weekly revenue
target is stored for later measurement.`,
		Args: cobra.ExactArgs(1),
		RunE: runCalculate,
	}
	cmd.Flags().Bool("save", false, "Save the weekly prediction")
	cmd.Flags().String("week-start", "", "Week start date (YYYY-MM-DD), defaults to next Monday")
	cmd.Flags().String("explain", "", "Also write an explain JSON file to this path")
	cmd.Flags().String("alerts", "", "Also write caption shortage alerts as JSON to this path")
	return cmd
}

func newMeasureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "measure",
		Short: "Measure outcomes of closed prediction weeks",
		Args:  cobra.NoArgs,
		RunE:  runMeasure,
	}
}

func newAccuracyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accuracy [creator_id]",
		Short: "Report prediction accuracy for one creator or all active creators",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAccuracy,
	}
	cmd.Flags().String("out", "", "Also write the all-creator report as JSON to this path")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect or run scheduled jobs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg.Scheduler.Jobs)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleJob,
	}

	cmd.AddCommand(listCmd, runCmd)
	return cmd
}

func runScheduleJob(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.newScheduler()
	if err != nil {
		return err
	}
	res, err := s.RunJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := printJSON(cmd, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("job %s failed: %s", res.JobName, res.Error)
	}
	return nil
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start monitoring HTTP server",
		Long:  "Starts HTTP server with /health, /metrics and /creators/{creator_id}/volume endpoints",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}
	cmd.Flags().String("host", "", "Listen host, overrides config")
	cmd.Flags().Int("port", 0, "Listen port, overrides config")
	return cmd
}

// openApp loads configuration and wires the process for one command
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}

func runCalculate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireServices(); err != nil {
		return err
	}

	opts := optimizer.Options{}
	opts.SavePrediction, _ = cmd.Flags().GetBool("save")
	if ws, _ := cmd.Flags().GetString("week-start"); ws != "" {
		t, err := time.Parse("2006-01-02", ws)
		if err != nil {
			return fmt.Errorf("invalid --week-start %q: %w", ws, err)
		}
		opts.WeekStart = t
	}

	res, err := a.service.CalculateOptimizedVolume(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("explain"); path != "" {
		if err := output.NewEmitter().EmitExplainJSON(path, res); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Explain JSON written")
	}
	if path, _ := cmd.Flags().GetString("alerts"); path != "" {
		if err := alerts.NewEmitter().EmitAlertsJSON(path, res.CalculatedAt, res.Captions); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("shortages", len(res.Captions.Shortages)).Msg("Caption alerts written")
	}
	return printJSON(cmd, res)
}

func runMeasure(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireServices(); err != nil {
		return err
	}

	res, err := a.tracker.MeasurePending(cmd.Context())
	if err != nil {
		return err
	}
	log.Info().
		Int("measured", res.Measured).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Prediction measurement complete")
	return printJSON(cmd, res)
}

func runAccuracy(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireServices(); err != nil {
		return err
	}

	if len(args) == 1 {
		acc, err := a.tracker.Accuracy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if acc == nil {
			return fmt.Errorf("no measured predictions for creator %s", args[0])
		}
		return printJSON(cmd, acc)
	}

	rep, err := a.tracker.AccuracyReport(cmd.Context())
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := output.NewEmitter().EmitAccuracyJSON(path, time.Now(), rep); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("creators", len(rep.Creators)).Msg("Accuracy report written")
	}
	return printJSON(cmd, rep)
}

// runMonitor serves health and metrics until SIGINT or SIGTERM
func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.config.Monitor
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		m.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		m.Port = port
	}

	serverConfig := httpserver.DefaultServerConfig()
	serverConfig.Host = m.Host
	serverConfig.Port = m.Port
	serverConfig.ReadTimeout = m.ReadTimeout
	serverConfig.WriteTimeout = m.WriteTimeout
	serverConfig.IdleTimeout = m.IdleTimeout

	var calculator httpserver.VolumeCalculator
	if a.service != nil {
		calculator = a.service
	}
	server := httpserver.NewServer(serverConfig, a.healthHandler(), a.metrics, calculator)

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if a.config.Scheduler.Enabled {
		s, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		go func() {
			if err := s.Start(jobsCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Scheduler stopped")
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("health", fmt.Sprintf("http://%s/health", server.Address())).
			Str("metrics", fmt.Sprintf("http://%s/metrics", server.Address())).
			Msg("Monitor endpoints available")
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Monitor server shutdown complete")
	return nil
}
