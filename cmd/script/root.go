package main

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/config"
	"token-analyzer/pkg/logger"
)

var (
	configPath string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "token-analyzer",
	Short: "Hedera token holder and transfer analyzer",
	Long: `token-analyzer fetches the full holder list and recent transfer history of a
Hedera fungible token from a mirror node, persists it and exports graph data.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config/config.analyzer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only write logs to file")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(visualizeCmd)
}

// setup 读取配置并创建带 trace 的 logger
func setup(ctx context.Context, command string) (config.Config, *zap.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return cfg, nil, err
		}
	} else {
		cfg = config.InitConfig()
	}

	logger.InitTrace("token-analyzer", "script")
	rootLogger := logger.NewLoggerWithOptions("script", logger.Options{Dir: cfg.Log.Dir, NoConsole: quiet})
	logger.SetLogLevel(cfg.Log.Level)
	return cfg, logger.WithTrace(ctx, rootLogger).With(zap.String("command", command)), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(data, '\n'))
	return err
}
