package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"steaming-robot/internal/decision"
	"steaming-robot/internal/trajectory"
	"steaming-robot/internal/types"
)

// 机器人模块的三个配置文件
const (
	ZoneTimeMappingFile      = "zone_time_mapping.csv"
	TransitionTimeTableFile  = "transition_time_table.csv"
	RobotModuleConfiguration = "robot_module_configuration.json"
)

// ParametersConfig 区域缺少描述时使用的九个机器人参数
type ParametersConfig struct {
	Speed         float64 `mapstructure:"speed"`
	Steam         int     `mapstructure:"steam"`
	Pressure      float64 `mapstructure:"pressure"`
	InputOffsetX  float64 `mapstructure:"input_offset_x"`
	InputOffsetY  float64 `mapstructure:"input_offset_y"`
	InputOffsetZ  float64 `mapstructure:"input_offset_z"`
	OutputOffsetX float64 `mapstructure:"output_offset_x"`
	OutputOffsetY float64 `mapstructure:"output_offset_y"`
	OutputOffsetZ float64 `mapstructure:"output_offset_z"`
}

// Parameters 转换为指令行参数
func (p ParametersConfig) Parameters() types.Parameters {
	return types.Parameters{
		Speed:        p.Speed,
		Steam:        p.Steam,
		Pressure:     p.Pressure,
		InputOffset:  types.Offset{X: p.InputOffsetX, Y: p.InputOffsetY, Z: p.InputOffsetZ},
		OutputOffset: types.Offset{X: p.OutputOffsetX, Y: p.OutputOffsetY, Z: p.OutputOffsetZ},
	}
}

// RobotConfig 机器人模块配置 (robot_module_configuration.json)
type RobotConfig struct {
	PreviousTransitionPoint string           `mapstructure:"previous_transition_point"`
	CycleTime               float64          `mapstructure:"cycle_time"`
	CumulatedTime           float64          `mapstructure:"cumulated_time"`
	AcceptanceThreshold     int              `mapstructure:"acceptance_threshold"`
	UploadFTP               bool             `mapstructure:"upload_ftp"`
	LeftBuckle              []int            `mapstructure:"left_buckle"`
	CentralBuckle           []int            `mapstructure:"central_buckle"`
	RightBuckle             []int            `mapstructure:"right_buckle"`
	ProgramNumberToNotSteam int              `mapstructure:"program_number_to_not_steam"`
	BypassRules             []string         `mapstructure:"bypass_rules"`
	DefaultParameters       ParametersConfig `mapstructure:"default_parameters"`
}

// requiredRobotKeys 缺少任一键时拒绝启动
var requiredRobotKeys = []string{"previous_transition_point", "cycle_time"}

// LoadRobotConfig 读取机器人模块 JSON 配置
func LoadRobotConfig(path string) (*RobotConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	d := trajectory.DefaultParameters
	v.SetDefault("cumulated_time", 0.0)
	v.SetDefault("acceptance_threshold", 1)
	v.SetDefault("upload_ftp", false)
	v.SetDefault("program_number_to_not_steam", decision.DefaultNotSteamProgram)
	v.SetDefault("default_parameters.speed", d.Speed)
	v.SetDefault("default_parameters.steam", d.Steam)
	v.SetDefault("default_parameters.pressure", d.Pressure)
	v.SetDefault("default_parameters.input_offset_x", d.InputOffset.X)
	v.SetDefault("default_parameters.input_offset_y", d.InputOffset.Y)
	v.SetDefault("default_parameters.input_offset_z", d.InputOffset.Z)
	v.SetDefault("default_parameters.output_offset_x", d.OutputOffset.X)
	v.SetDefault("default_parameters.output_offset_y", d.OutputOffset.Y)
	v.SetDefault("default_parameters.output_offset_z", d.OutputOffset.Z)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取机器人配置失败: %w", err)
	}
	for _, key := range requiredRobotKeys {
		if !v.IsSet(key) {
			return nil, fmt.Errorf("机器人配置缺少必填项 %q (%s)", key, path)
		}
	}

	var cfg RobotConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析机器人配置失败: %w", err)
	}
	if cfg.CycleTime <= 0 {
		return nil, fmt.Errorf("cycle_time 必须大于 0: %v", cfg.CycleTime)
	}
	if cfg.PreviousTransitionPoint == "" {
		return nil, fmt.Errorf("previous_transition_point 不能为空")
	}
	return &cfg, nil
}

// BuckleExclusions 每个安全带位置失效时排除的区域
func (r *RobotConfig) BuckleExclusions() trajectory.BuckleExclusions {
	toZones := func(ids []int) []types.ZoneID {
		zones := make([]types.ZoneID, 0, len(ids))
		for _, id := range ids {
			zones = append(zones, types.ZoneID(id))
		}
		return zones
	}
	return trajectory.BuckleExclusions{
		types.LeftBuckle:    toZones(r.LeftBuckle),
		types.CentralBuckle: toZones(r.CentralBuckle),
		types.RightBuckle:   toZones(r.RightBuckle),
	}
}

// Settings 转换为决策编排器配置。uploadEnabled 为 false 时强制不推送
func (r *RobotConfig) Settings(uploadEnabled bool) decision.Settings {
	return decision.Settings{
		CycleTime:       r.CycleTime,
		StartingPoint:   r.PreviousTransitionPoint,
		CumulatedTime:   r.CumulatedTime,
		UploadEnabled:   r.UploadFTP && uploadEnabled,
		NotSteamProgram: r.ProgramNumberToNotSteam,
		Buckles:         r.BuckleExclusions(),
	}
}

// ConfigFiles 实际使用的三个配置文件路径
type ConfigFiles struct {
	ZoneTimeMapping     string
	TransitionTimeTable string
	RobotConfiguration  string
}

// ResolveFiles 每个配置文件优先取 requested 目录中的版本，不存在时退回 default 目录
func ResolveFiles(requestedDir, defaultDir string, logger *slog.Logger) (ConfigFiles, error) {
	resolve := func(name string) (string, error) {
		requested := filepath.Join(requestedDir, name)
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			logger.Info("使用现场配置文件", "file", requested)
			return requested, nil
		}
		fallback := filepath.Join(defaultDir, name)
		if _, err := os.Stat(fallback); err != nil {
			return "", fmt.Errorf("配置文件 %s 在 %s 和 %s 中都不存在: %w", name, requestedDir, defaultDir, err)
		}
		logger.Info("使用默认配置文件", "file", fallback)
		return fallback, nil
	}

	var files ConfigFiles
	var err error
	if files.ZoneTimeMapping, err = resolve(ZoneTimeMappingFile); err != nil {
		return files, err
	}
	if files.TransitionTimeTable, err = resolve(TransitionTimeTableFile); err != nil {
		return files, err
	}
	if files.RobotConfiguration, err = resolve(RobotModuleConfiguration); err != nil {
		return files, err
	}
	return files, nil
}
