// Command vendo runs a coin-operated vending controller on a Raspberry Pi.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/config"
	"github.com/sweeney/vendo/internal/gpio"
	"github.com/sweeney/vendo/internal/logger"
	"github.com/sweeney/vendo/internal/remote"
	"github.com/sweeney/vendo/internal/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the vending controller (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	root := &cobra.Command{
		Use:          "vendo",
		Short:        "Coin-operated vending controller",
		SilenceUsage: true,
		RunE:         runCmd.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./vendo.yaml or /etc/vendo/vendo.yaml)")

	root.AddCommand(runCmd)
	root.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Print the current input levels and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			board, err := openBoard(cfg)
			if err != nil {
				return err
			}
			defer board.Close()
			return printState(cmd.OutOrStdout(), cfg, board)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return cfg.WriteTOML(cmd.OutOrStdout())
		},
	})
	return root
}

func run(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	board, err := openBoard(cfg)
	if err != nil {
		log.Error("gpio init failed", zap.Error(err))
		return err
	}

	var store remote.Store
	if cfg.Remote.Enabled {
		store, err = remote.NewMQTTStore(remote.MQTTConfig{
			Broker:     cfg.Remote.Broker,
			ClientID:   cfg.Remote.ClientID,
			Prefix:     cfg.RemotePrefix(),
			BufferSize: cfg.Remote.BufferSize,
			Will:       status.FormatOffline(),
		}, log.Named("remote"))
		if err != nil {
			board.Close()
			return fmt.Errorf("init remote store: %w", err)
		}
	}

	sys, err := newSystem(cfg, board, store, log, time.Now)
	if err != nil {
		board.Close()
		if store != nil {
			store.Close()
		}
		return err
	}

	log.Info("started",
		zap.Int("channels", len(cfg.Channels)),
		zap.String("coin_mode", cfg.Coin.Mode),
		zap.Bool("remote", cfg.Remote.Enabled),
		zap.String("http", cfg.HTTP.Addr),
	)

	runErr := sys.run(ctx, in, out)
	closeErr := sys.close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func openBoard(cfg *config.Config) (gpio.Board, error) {
	if cfg.GPIO.Fake {
		return gpio.NewFakeBoard(), nil
	}
	board, err := gpio.NewRealBoard(cfg.GPIO.Chip, cfg.Layout())
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	return board, nil
}

func printState(w io.Writer, cfg *config.Config, r gpio.Reader) error {
	coin, err := r.Read(cfg.Coin.Pin)
	if err != nil {
		return fmt.Errorf("read coin line: %w", err)
	}
	fmt.Fprintf(w, "coin: %s\n", stateString(coin))

	for _, ch := range cfg.Channels {
		sensor, err := r.Read(ch.SensorPin)
		if err != nil {
			return fmt.Errorf("read %s sensor: %w", ch.ID, err)
		}
		line := fmt.Sprintf("%s: sensor %s", ch.ID, stateString(sensor))
		if ch.ButtonPin >= 0 {
			button, err := r.Read(ch.ButtonPin)
			if err != nil {
				return fmt.Errorf("read %s button: %w", ch.ID, err)
			}
			line += ", button " + stateString(button)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
