package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/engine"
	"github.com/pg-sharding/dsproxy/router/sdnotifier"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the proxy instance until it is signalled to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.ProxyConfig()

		if daemonize {
			cntxt := &daemon.Context{
				PidFileName: cfg.PidFileName,
				PidFilePerm: 0644,
				LogFileName: cfg.LogFileName,
				LogFilePerm: 0640,
				WorkDir:     "./",
				Umask:       027,
			}
			d, err := cntxt.Reborn()
			if err != nil {
				return err
			}
			if d != nil {
				return nil
			}
			defer func() {
				if err := cntxt.Release(); err != nil {
					dslog.Zero.Error().Err(err).Msg("failed to release pid file")
				}
			}()
		}

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()

		inst, err := bootstrap(ctx)
		if err != nil {
			return err
		}

		notifier, err := sdnotifier.NewNotifier(cfg.SystemdNotifierDebug)
		if err != nil {
			_ = inst.Close()
			return err
		}
		defer func() { _ = notifier.Close() }()
		if err := notifier.Ready(); err != nil {
			dslog.Zero.Error().Err(err).Msg("failed to notify systemd")
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

		dslog.Zero.Info().
			Str("database", cfg.DatabaseName).
			Strs("data sources", inst.AvailableDataSources()).
			Msg("dsproxy started")

		for {
			s := <-sigs
			dslog.Zero.Info().Str("signal", s.String()).Msg("received signal")

			switch s {
			case syscall.SIGUSR1:
				tts := engine.StatisticsVirtualRelationScan(inst.Stats())
				for _, row := range slotRows(tts) {
					dslog.Zero.Info().Strs("row", row).Msg("execution statistics")
				}
				rate := inst.StatementRate().Snapshot()
				dslog.Zero.Info().
					Float64("current", rate.CurrentRPS).
					Float64("average", rate.AvgRPS).
					Float64("peak", rate.PeakRPS).
					Int64("total", rate.TotalRequests).
					Msg("statement rate")
				for code, cnt := range inst.Errors().ErrorCounts() {
					dslog.Zero.Info().Str("code", code).Uint64("count", cnt).Msg("statement errors")
				}
			case syscall.SIGHUP:
				_ = notifier.Reloading()
				dslog.ReloadLogger(cfg.LogFileName, cfg.LogLevel, cfg.PrettyLogging)
				_ = notifier.Ready()
			case syscall.SIGINT, syscall.SIGTERM:
				_ = notifier.Stopping()
				cancelCtx()
				return inst.Close()
			}
		}
	},
}
