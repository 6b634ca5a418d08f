package cli

import (
	"fmt"
	"log/slog"

	"steaming-robot/internal/config"
	"steaming-robot/internal/decision"
	"steaming-robot/internal/event"
	"steaming-robot/internal/sink"
	"steaming-robot/internal/tables"
	"steaming-robot/internal/trajectory"
)

// Tables 启动时加载的配置表与机器人模块配置
type Tables struct {
	Files       config.ConfigFiles
	Zones       *tables.ZoneTable
	Transitions *tables.TransitionTable
	Robot       *config.RobotConfig
}

// LoadTables 按 requested/default 规则定位并加载三个配置文件
func LoadTables(cfg *config.Config, logger *slog.Logger) (*Tables, error) {
	files, err := config.ResolveFiles(cfg.ConfigDirRequested, cfg.ConfigDirDefault, logger)
	if err != nil {
		return nil, err
	}
	zones, err := tables.LoadZoneTableFile(files.ZoneTimeMapping, logger)
	if err != nil {
		return nil, fmt.Errorf("加载区域表失败: %w", err)
	}
	transitions, err := tables.LoadTransitionTableFile(files.TransitionTimeTable, logger)
	if err != nil {
		return nil, fmt.Errorf("加载过渡时间表失败: %w", err)
	}
	robot, err := config.LoadRobotConfig(files.RobotConfiguration)
	if err != nil {
		return nil, err
	}
	return &Tables{Files: files, Zones: zones, Transitions: transitions, Robot: robot}, nil
}

// MissingTransitionPoints 区域表引用但过渡时间表行/列中缺失的过渡点
func (t *Tables) MissingTransitionPoints() (rows, cols []string) {
	return tables.MissingTransitionPoints(t.Zones, t.Transitions)
}

// CheckConsistency 检查过渡点，缺失时记录警告
func (t *Tables) CheckConsistency(logger *slog.Logger) bool {
	rows, cols := t.MissingTransitionPoints()
	if len(rows) == 0 && len(cols) == 0 {
		return true
	}
	logger.Warn("区域表引用的过渡点在过渡时间表中缺失", "missing_rows", rows, "missing_columns", cols)
	return false
}

// NewOrchestrator 组装决策编排器。orderSink 为 nil 时不推送指令文件
func (t *Tables) NewOrchestrator(orderSink sink.OrderSink, bus *event.Bus, logger *slog.Logger) *decision.Orchestrator {
	rules := trajectory.NewRules(t.Zones, t.Transitions, t.Robot.AcceptanceThreshold,
		t.Robot.DefaultParameters.Parameters(), logger)
	bypass := decision.NewBypassRules(t.Robot.BypassRules, logger)
	if n := bypass.Len(); n > 0 {
		logger.Info("免熨烫规则已启用", "rules", n, "configured", len(t.Robot.BypassRules))
	}
	return decision.NewOrchestrator(rules, t.Robot.Settings(orderSink != nil), bypass, orderSink, bus, logger)
}
