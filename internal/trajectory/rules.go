package trajectory

import (
	"log/slog"

	"steaming-robot/internal/types"
)

// ZoneCatalog 区域表：描述查询 + 每个项目的规范区域顺序
type ZoneCatalog interface {
	ZoneLookup
	PriorityOrder(plantProject string) ([]types.ZoneID, bool)
}

// Rules 将严重度过滤、优先级排序、时间预算选择和指令格式化组合起来
type Rules struct {
	zones       ZoneCatalog
	transitions TransitionLookup
	threshold   int
	defaults    types.Parameters
	logger      *slog.Logger
}

// NewRules 创建一个新的 Rules 实例
func NewRules(zones ZoneCatalog, transitions TransitionLookup, threshold int, defaults types.Parameters, logger *slog.Logger) *Rules {
	return &Rules{
		zones:       zones,
		transitions: transitions,
		threshold:   threshold,
		defaults:    defaults,
		logger:      logger.With("component", "trajectory"),
	}
}

// Plan 一次决策的轨迹规划结果
type Plan struct {
	Selection
	Commands []types.CommandRow
}

// Sequence 过滤掉不需要处理的区域，并按项目的规范顺序排列
func (r *Rules) Sequence(candidates map[types.ZoneID]int, plantProject string) []types.Candidate {
	if len(candidates) == 0 {
		r.logger.Info("没有需要评估的褶皱")
		return []types.Candidate{}
	}

	severe := FilterSeverity(CandidateList(candidates), r.threshold)
	if len(severe) == 0 {
		r.logger.Info("所有褶皱均高于可接受度阈值，无需熨烫", "threshold", r.threshold)
		return []types.Candidate{}
	}

	order, ok := r.zones.PriorityOrder(plantProject)
	if !ok {
		r.logger.Error("未找到项目的区域顺序配置", "plant_project", plantProject)
		return []types.Candidate{}
	}
	return SortByPriority(severe, order)
}

// Plan 执行 过滤排序 → 时间预算选择 → 指令格式化
func (r *Rules) Plan(candidates map[types.ZoneID]int, seat Seat, budget Budget, programNumber types.ProgramNumber, serialNumber string) (Plan, error) {
	sequence := r.Sequence(candidates, seat.PlantProject)

	sel, err := Select(sequence, seat, r.zones, r.transitions, budget)
	if err != nil {
		return Plan{}, err
	}
	if sel.BudgetExceeded {
		r.logger.Info("节拍时间不足，部分区域未被选中",
			"selected", len(sel.Zones), "candidates", len(sequence), "cycle_time", budget.CycleTime)
	}

	return Plan{
		Selection: sel,
		Commands:  FormatCommands(sel.Zones, seat, r.zones, programNumber, serialNumber, r.defaults, r.logger),
	}, nil
}
