package trajectory

import (
	"errors"
	"fmt"
	"math"

	"steaming-robot/internal/types"
)

var (
	// ErrZoneNotFound 区域表中不存在对应的复合键
	ErrZoneNotFound = errors.New("trajectory: zone descriptor not found")
	// ErrTransitionNotFound 过渡表中不存在对应的起点/终点
	ErrTransitionNotFound = errors.New("trajectory: transition not found")
)

// LookupError 选择过程中缺失的查找键
type LookupError struct {
	Key any
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %+v", e.Err, e.Key)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ZoneLookup 区域描述的只读查询
type ZoneLookup interface {
	Lookup(key types.ZoneKey) (types.ZoneDescriptor, bool)
}

// TransitionLookup 过渡耗时的只读查询
type TransitionLookup interface {
	Cost(from, to string) (float64, bool)
}

// Seat 选择区域描述所需的座椅配置轴
type Seat struct {
	PlantProject  string
	CoverMaterial string
}

// Key 构造候选区域的完整复合键
func (s Seat) Key(c types.Candidate) types.ZoneKey {
	return types.ZoneKey{
		PlantProject:  s.PlantProject,
		Zone:          c.Zone,
		Acceptance:    c.Acceptance,
		CoverMaterial: s.CoverMaterial,
	}
}

// Budget 一个工作节拍的时间预算
type Budget struct {
	CycleTime        float64 // 节拍时间上限 (秒)
	StartingPoint    string  // 本节拍开始前机器人所在的过渡点
	InitialCumulated float64 // 结转的已用时间
}

// Selection 时间预算选择的结果
type Selection struct {
	Zones                  []types.Candidate
	Records                []types.TimingRecord
	TheoreticalWorkingTime float64
	BudgetExceeded         bool
}

// Select 贪心地按顺序累加过渡与熨烫耗时，超出预算即停止，不回溯。
// 查找不到区域描述或过渡耗时会返回错误
func Select(sequence []types.Candidate, seat Seat, zones ZoneLookup, transitions TransitionLookup, budget Budget) (Selection, error) {
	sel := Selection{
		Zones:   make([]types.Candidate, 0, len(sequence)),
		Records: make([]types.TimingRecord, 0, len(sequence)),
	}
	if len(sequence) == 0 {
		return sel, nil
	}

	cumulated := budget.InitialCumulated
	previous := budget.StartingPoint
	for _, c := range sequence {
		key := seat.Key(c)
		desc, ok := zones.Lookup(key)
		if !ok {
			return Selection{}, &LookupError{Key: key, Err: ErrZoneNotFound}
		}
		transition, ok := transitions.Cost(previous, desc.TransitionPoint)
		if !ok {
			return Selection{}, &LookupError{
				Key: types.TransitionKey{From: previous, To: desc.TransitionPoint},
				Err: ErrTransitionNotFound,
			}
		}

		step := desc.SteamingTime*float64(desc.TrajectoryRepeat) + transition
		if cumulated+step > budget.CycleTime {
			sel.BudgetExceeded = true
			break
		}

		sel.Zones = append(sel.Zones, c)
		sel.Records = append(sel.Records, types.TimingRecord{
			InputZone:        c.Zone,
			Acceptance:       c.Acceptance,
			TransitionPoints: previous + " " + desc.TransitionPoint,
			TransitionTime:   transition,
			SteamingTime:     desc.SteamingTime,
		})
		cumulated += step
		previous = desc.TransitionPoint
	}

	sel.TheoreticalWorkingTime = roundTenth(cumulated)
	return sel, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
