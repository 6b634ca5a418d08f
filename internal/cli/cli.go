package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"steaming-robot/internal/config"
	"steaming-robot/internal/engine"
	"steaming-robot/internal/event"
	"steaming-robot/internal/handlers"
	"steaming-robot/internal/metrics"
	"steaming-robot/internal/persistence"
	"steaming-robot/internal/sink"
	"steaming-robot/internal/transport"
	"steaming-robot/internal/web"
)

// ErrInconsistentTables 区域表引用的过渡点在过渡时间表中缺失
var ErrInconsistentTables = errors.New("transition table does not cover every transition point")

// options 所有子命令共享的参数
type options struct {
	configDir string
}

// BuildCLI 构建命令行：run 启动服务，check 检查配置表，decide 离线决策
func BuildCLI() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "steaming-robot",
		Short:         "Steaming robot decision service",
		Long:          "Turns wrinkle detections into steaming orders for the robot within one cycle time.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configDir, "config-dir", "c", ".", "directory holding config.yaml")

	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildCheckCommand(opts))
	rootCmd.AddCommand(buildDecideCommand(opts))
	return rootCmd
}

// Execute 运行命令行并返回进程退出码
func Execute() int {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func loadConfig(opts *options, w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(opts.configDir)
	if err != nil {
		return nil, nil, err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func buildRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume inbound events and publish steaming decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts, os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runService(ctx, cfg, logger)
		},
	}
}

// runService 启动完整服务，阻塞直到 ctx 取消
func runService(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	t, err := LoadTables(cfg, logger)
	if err != nil {
		return err
	}
	t.CheckConsistency(logger)

	// 1. 初始化核心组件
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg, cfg.MetricsLabels())

	hub := web.NewHub(logger)
	go hub.Run(ctx)
	stateTracker := web.NewStateTracker(hub, 0)

	eventBus := event.NewBus()
	handlers.RegisterEventHandlers(eventBus, recorder, stateTracker, logger)

	wal, err := persistence.NewWAL(cfg.WALPath)
	if err != nil {
		return fmt.Errorf("无法初始化 WAL: %w", err)
	}
	defer wal.Close()

	// 2. 外部连接
	broker, err := transport.DialAMQP(cfg.AMQP(), logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	var archiver engine.Archiver
	if cfg.BlobConnectionString != "" {
		a, err := sink.NewArchiver(ctx, cfg.BlobConnectionString, cfg.BlobContainerName, logger)
		if err != nil {
			return err
		}
		archiver = a
	} else {
		logger.Warn("未配置 Blob 连接串，指令文件不归档")
	}

	// 3. 调度器
	orch := t.NewOrchestrator(cfg.OrderSink(logger), eventBus, logger)
	dispatcher := engine.NewDispatcher(orch, broker, archiver, wal, recorder, eventBus, logger)
	n, err := dispatcher.RecoverEvents()
	if err != nil {
		logger.Warn("从 WAL 恢复事件失败", "error", err)
	} else if n > 0 {
		logger.Info("已重新加载未完成的事件", "count", n, "pending", dispatcher.Pending())
	}
	if err := wal.Compact(); err != nil {
		logger.Warn("压缩 WAL 失败", "error", err)
	}
	if err := dispatcher.Consume(ctx, broker); err != nil {
		return err
	}
	go dispatcher.Start(ctx)

	// 4. HTTP 服务
	servers := []*http.Server{
		{Addr: cfg.MetricsAddr(), Handler: web.MetricsHandler(reg)},
		{Addr: cfg.HTTPAddr, Handler: web.NewMux(reg, hub, stateTracker, dispatcher, logger)},
	}
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("HTTP 服务启动", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP 服务启动失败", "addr", srv.Addr, "error", err)
			}
		}(srv)
	}

	logger.Info("=== 熨烫机器人决策服务启动 ===", "cycle_time", t.Robot.CycleTime,
		"starting_point", t.Robot.PreviousTransitionPoint, "upload_ftp", t.Robot.UploadFTP)

	// 5. 优雅停机
	<-ctx.Done()
	logger.Info("接收到停机信号，正在优雅关闭...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(shutdownCtx)
	}
	dispatcher.WaitForCompletion()
	eventBus.Drain()
	logger.Info("服务已安全退出")
	return nil
}

func buildCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the configuration tables and report missing transition points",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			t, err := LoadTables(cfg, logger)
			if err != nil {
				return err
			}
			return printCheck(cmd.OutOrStdout(), t)
		},
	}
}

func printCheck(w io.Writer, t *Tables) error {
	rows, cols := t.MissingTransitionPoints()
	fmt.Fprintf(w, "zone table:        %s (%d descriptors)\n", t.Files.ZoneTimeMapping, t.Zones.Len())
	fmt.Fprintf(w, "transition table:  %s (%d entries)\n", t.Files.TransitionTimeTable, t.Transitions.Len())
	fmt.Fprintf(w, "robot config:      %s\n", t.Files.RobotConfiguration)
	if len(rows) == 0 && len(cols) == 0 {
		fmt.Fprintln(w, "consistent: yes")
		return nil
	}
	fmt.Fprintln(w, "consistent: no")
	for _, p := range rows {
		fmt.Fprintf(w, "  missing row:    %s\n", p)
	}
	for _, p := range cols {
		fmt.Fprintf(w, "  missing column: %s\n", p)
	}
	return ErrInconsistentTables
}

func buildDecideCommand(opts *options) *cobra.Command {
	var eventFile string
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Decide one inbound event offline and print the outbound message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventFile == "" {
				return errors.New("--file is required")
			}
			body, err := readEvent(eventFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, logger, err := loadConfig(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			t, err := LoadTables(cfg, logger)
			if err != nil {
				return err
			}
			out, err := decideOffline(cmd.Context(), t, body, logger)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&eventFile, "file", "f", "", "inbound event JSON file (- for stdin)")
	return cmd
}

func readEvent(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取事件文件失败: %w", err)
	}
	return body, nil
}

// decideOffline 通过内存传输跑一次完整的调度流程，不推送、不归档
func decideOffline(ctx context.Context, t *Tables, body []byte, logger *slog.Logger) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mem := transport.NewMemory(1)
	defer mem.Close()
	dispatcher := engine.NewDispatcher(t.NewOrchestrator(nil, nil, logger), mem, nil, nil, nil, nil, logger)
	go dispatcher.Start(ctx)
	dispatcher.Submit("cli", body)

	select {
	case <-mem.Notify():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	published := mem.Published()
	if len(published) == 0 {
		return nil, errors.New("没有产生出站消息")
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, published[0], "", "  "); err != nil {
		return nil, err
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}
