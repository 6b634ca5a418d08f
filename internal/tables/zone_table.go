package tables

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"steaming-robot/internal/types"
)

var (
	// ErrEmptyTable 表格文件没有任何内容
	ErrEmptyTable = errors.New("tables: empty table")
	// ErrMissingColumn 区域表缺少必需的列
	ErrMissingColumn = errors.New("tables: missing column")
)

// 区域表的列名
const (
	colPlantProject     = "plant_project"
	colZoneNumber       = "zone_number"
	colAcceptance       = "acceptance"
	colCoverMaterial    = "cover_material"
	colTime             = "time"
	colInputOffsetX     = "input_offset_x"
	colInputOffsetY     = "input_offset_y"
	colInputOffsetZ     = "input_offset_z"
	colOutputOffsetX    = "output_offset_x"
	colOutputOffsetY    = "output_offset_y"
	colOutputOffsetZ    = "output_offset_z"
	colTransitionPoint  = "transition_point"
	colSteam            = "steam"
	colSpeed            = "speed"
	colTrajectoryRepeat = "trajectory_occurence"
	colPressure         = "pressure"
)

var zoneColumns = []string{
	colPlantProject, colZoneNumber, colAcceptance, colCoverMaterial, colTime,
	colInputOffsetX, colInputOffsetY, colInputOffsetZ,
	colOutputOffsetX, colOutputOffsetY, colOutputOffsetZ,
	colTransitionPoint, colSteam, colSpeed, colTrajectoryRepeat, colPressure,
}

// ZoneTable 区域描述表以及每个座椅项目的区域优先顺序
// 进程启动时加载一次，之后只读
type ZoneTable struct {
	descriptors map[types.ZoneKey]types.ZoneDescriptor
	priorities  map[string][]types.ZoneID
}

// NewZoneTable 创建一个空的区域表
func NewZoneTable() *ZoneTable {
	return &ZoneTable{
		descriptors: make(map[types.ZoneKey]types.ZoneDescriptor),
		priorities:  make(map[string][]types.ZoneID),
	}
}

// Add 在加载阶段登记一行。重复的键保留第一次出现的值并返回 false；
// 无论是否重复，该区域都会追加到项目的优先顺序中
func (t *ZoneTable) Add(key types.ZoneKey, d types.ZoneDescriptor) bool {
	t.priorities[key.PlantProject] = append(t.priorities[key.PlantProject], key.Zone)
	if _, exists := t.descriptors[key]; exists {
		return false
	}
	t.descriptors[key] = d
	return true
}

// Lookup 按完整复合键查找区域描述
func (t *ZoneTable) Lookup(key types.ZoneKey) (types.ZoneDescriptor, bool) {
	d, ok := t.descriptors[key]
	return d, ok
}

// PriorityOrder 返回项目的规范区域顺序 (去重，保留首次出现)
func (t *ZoneTable) PriorityOrder(plantProject string) ([]types.ZoneID, bool) {
	raw, ok := t.priorities[plantProject]
	if !ok {
		return nil, false
	}
	seen := make(map[types.ZoneID]bool, len(raw))
	order := make([]types.ZoneID, 0, len(raw))
	for _, z := range raw {
		if seen[z] {
			continue
		}
		seen[z] = true
		order = append(order, z)
	}
	return order, true
}

// TransitionPoints 返回所有区域描述引用的过渡点集合
func (t *ZoneTable) TransitionPoints() map[string]struct{} {
	points := make(map[string]struct{})
	for _, d := range t.descriptors {
		points[d.TransitionPoint] = struct{}{}
	}
	return points
}

// Len 返回不同键的数量
func (t *ZoneTable) Len() int { return len(t.descriptors) }

// LoadZoneTableFile 从文件加载区域表
func LoadZoneTableFile(path string, logger *slog.Logger) (*ZoneTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开区域表失败: %w", err)
	}
	defer f.Close()
	return LoadZoneTable(f, logger.With("file", path))
}

// LoadZoneTable 解析区域表。数值列无法解析的行会记录错误并跳过
func LoadZoneTable(r io.Reader, logger *slog.Logger) (*ZoneTable, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range zoneColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	table := NewZoneTable()
	for n, row := range rows {
		get := func(col string) string { return field(row, index[col]) }

		key, desc, err := parseZoneRow(get)
		if err != nil {
			logger.Error("区域表行无效，已跳过", "line", n+2, "error", err)
			continue
		}
		if !table.Add(key, desc) {
			logger.Warn("区域表中存在重复的键，保留第一次出现的值", "line", n+2,
				"plant_project", key.PlantProject, "zone", key.Zone,
				"acceptance", key.Acceptance, "cover_material", key.CoverMaterial)
		}
	}
	logger.Info("区域表加载完成", "entries", table.Len(), "plant_projects", len(table.priorities))
	return table, nil
}

func parseZoneRow(get func(string) string) (types.ZoneKey, types.ZoneDescriptor, error) {
	var (
		key  types.ZoneKey
		desc types.ZoneDescriptor
		errs []error
	)
	atoi := func(col string) int {
		v, err := strconv.Atoi(get(col))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", col, err))
		}
		return v
	}
	atof := func(col string) float64 {
		v, err := strconv.ParseFloat(get(col), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", col, err))
		}
		return v
	}

	key.PlantProject = get(colPlantProject)
	key.Zone = types.ZoneID(atoi(colZoneNumber))
	key.Acceptance = atoi(colAcceptance)
	key.CoverMaterial = get(colCoverMaterial)

	desc.SteamingTime = atof(colTime)
	desc.TransitionPoint = get(colTransitionPoint)
	desc.TrajectoryRepeat = atoi(colTrajectoryRepeat)
	desc.Speed = atof(colSpeed)
	desc.Steam = atoi(colSteam)
	desc.Pressure = atof(colPressure)
	desc.InputOffset = types.Offset{X: atof(colInputOffsetX), Y: atof(colInputOffsetY), Z: atof(colInputOffsetZ)}
	desc.OutputOffset = types.Offset{X: atof(colOutputOffsetX), Y: atof(colOutputOffsetY), Z: atof(colOutputOffsetZ)}

	return key, desc, errors.Join(errs...)
}
