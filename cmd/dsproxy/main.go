package main

import (
	"context"
	"fmt"

	"github.com/pg-sharding/dsproxy/pkg"
	"github.com/pg-sharding/dsproxy/pkg/config"
	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/router/instance"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	logLevel  string
	daemonize bool
)

var rootCmd = &cobra.Command{
	Use:   "dsproxy run --config `path-to-config`",
	Short: "dsproxy",
	Long:  "Distributed SQL proxy over a set of database data sources",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		cfgStr, err := config.LoadProxyCfg(cfgPath)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		cfg := config.ProxyConfig()
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		dslog.ReloadLogger(cfg.LogFileName, cfg.LogLevel, cfg.PrettyLogging)
		if err := dslog.UpdateZeroLogLevel(cfg.LogLevel); err != nil {
			return err
		}
		dslog.Zero.Debug().Str("config", cfgStr).Msg("loaded config")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dsproxy version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(pkg.DsproxyVersionRevision)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/dsproxy/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level, overrides the config file")
	runCmd.Flags().BoolVarP(&daemonize, "daemonize", "d", false, "run in background")

	rootCmd.AddCommand(runCmd, routeCmd, execCmd, tablesCmd, versionCmd)
}

// bootstrap builds the instance and loads table metadata.
func bootstrap(ctx context.Context) (*instance.Instance, error) {
	inst, err := instance.NewInstance(ctx, config.ProxyConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create instance")
	}
	if err := instance.NewMetadataBootstrapper(inst).InitializeMetadata(ctx, inst); err != nil {
		_ = inst.Close()
		return nil, errors.Wrap(err, "failed to load metadata")
	}
	return inst, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		dslog.Zero.Fatal().Err(err).Msg("")
	}
}

func main() {
	Execute()
}
