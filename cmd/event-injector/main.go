package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"steaming-robot/internal/config"
	"steaming-robot/internal/transport"
)

// main 是产线测试用的事件注入工具：把事件 JSON 文件发布到入站 exchange
func main() {
	var (
		configDir  string
		exchange   string
		routingKey string
		repeat     int
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:          "event-injector -f event.json [-f other.json ...]",
		Short:        "Publish inbound event files to the robot input exchange",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, _ := cmd.Flags().GetStringSlice("file")
			if len(files) == 0 {
				return fmt.Errorf("--file is required")
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "event-injector")

			cfg, err := config.LoadConfig(configDir)
			if err != nil {
				return err
			}
			if exchange == "" {
				exchange = cfg.InputExchange
			}

			bodies := make([][]byte, 0, len(files))
			for _, f := range files {
				body, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("读取事件文件失败: %w", err)
				}
				bodies = append(bodies, body)
			}

			broker, err := transport.DialAMQP(cfg.AMQP(), logger)
			if err != nil {
				return err
			}
			defer broker.Close()

			ctx := cmd.Context()
			for i := 0; i < repeat; i++ {
				for n, body := range bodies {
					if err := broker.PublishTo(ctx, exchange, routingKey, body); err != nil {
						return err
					}
					logger.Info("事件已发布", "file", files[n], "exchange", exchange, "routing_key", routingKey, "round", i+1)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(interval):
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceP("file", "f", nil, "inbound event JSON file(s)")
	cmd.Flags().StringVarP(&configDir, "config-dir", "c", ".", "directory holding config.yaml")
	cmd.Flags().StringVar(&exchange, "exchange", "", "target exchange (default: input_exchange)")
	cmd.Flags().StringVar(&routingKey, "routing-key", "seat.inspection", "routing key")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "number of rounds")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "pause between two events")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
