package trajectory

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"steaming-robot/internal/tables"
	"steaming-robot/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seat = Seat{PlantProject: "R8", CoverMaterial: "Tissu_Tep"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fixture 三个区域：10→B，31→C，50→B
func fixture(t *testing.T) (*tables.ZoneTable, *tables.TransitionTable) {
	t.Helper()
	zones := tables.NewZoneTable()
	add := func(zone types.ZoneID, acceptance int, point string, steam float64, repeat int) {
		zones.Add(seat.Key(types.Candidate{Zone: zone, Acceptance: acceptance}), types.ZoneDescriptor{
			SteamingTime:     steam,
			TransitionPoint:  point,
			TrajectoryRepeat: repeat,
			Parameters: types.Parameters{
				Speed: 12, Steam: 1, Pressure: 25,
				InputOffset:  types.Offset{X: 1, Y: 2, Z: 3},
				OutputOffset: types.Offset{X: 4, Y: 5, Z: 6},
			},
		})
	}
	add(10, 0, "B", 3.0, 1)
	add(31, 0, "C", 1.0, 2)
	add(50, 1, "B", 2.0, 1)

	transitions := tables.NewTransitionTable()
	for _, p := range []string{"A", "B", "C"} {
		transitions.Set(p, p, 0)
	}
	transitions.Set("A", "B", 2.0)
	transitions.Set("A", "C", 3.0)
	transitions.Set("B", "C", 1.5)
	transitions.Set("C", "B", 1.5)
	transitions.Set("B", "A", 2.0)
	transitions.Set("C", "A", 3.0)
	return zones, transitions
}

func TestFilterBuckles(t *testing.T) {
	candidates := map[types.ZoneID]int{10: 0, 31: 0, 50: 1}
	exclusions := BuckleExclusions{
		types.LeftBuckle:    {10},
		types.CentralBuckle: {31, 99},
		types.RightBuckle:   {50},
	}

	t.Run("no reading passes through", func(t *testing.T) {
		out, unknown := FilterBuckles(candidates, nil, exclusions)
		assert.False(t, unknown)
		assert.Equal(t, candidates, out)
	})

	t.Run("unknown aborts", func(t *testing.T) {
		out, unknown := FilterBuckles(candidates, &types.BuckleDecision{Left: "UNKNOWN", Central: "KO", Right: "OK"}, exclusions)
		assert.True(t, unknown)
		assert.Equal(t, candidates, out)
	})

	t.Run("failed removes configured zones", func(t *testing.T) {
		out, unknown := FilterBuckles(candidates, &types.BuckleDecision{Left: "OK", Central: "KO", Right: "OK"}, exclusions)
		assert.False(t, unknown)
		assert.Equal(t, map[types.ZoneID]int{10: 0, 50: 1}, out)
		assert.Len(t, candidates, 3, "输入不应被修改")
	})

	t.Run("absent locations contribute nothing", func(t *testing.T) {
		out, unknown := FilterBuckles(candidates, &types.BuckleDecision{Right: "KO"}, exclusions)
		assert.False(t, unknown)
		assert.Equal(t, map[types.ZoneID]int{10: 0, 31: 0}, out)
	})

	t.Run("idempotent and commutative", func(t *testing.T) {
		reading := &types.BuckleDecision{Left: "KO", Central: "OK", Right: "KO"}
		once, _ := FilterBuckles(candidates, reading, exclusions)
		twice, _ := FilterBuckles(once, reading, exclusions)
		assert.Equal(t, once, twice)

		left, _ := FilterBuckles(candidates, &types.BuckleDecision{Left: "KO"}, exclusions)
		leftRight, _ := FilterBuckles(left, &types.BuckleDecision{Right: "KO"}, exclusions)
		right, _ := FilterBuckles(candidates, &types.BuckleDecision{Right: "KO"}, exclusions)
		rightLeft, _ := FilterBuckles(right, &types.BuckleDecision{Left: "KO"}, exclusions)
		assert.Equal(t, leftRight, rightLeft)
		assert.Equal(t, once, leftRight)
	})
}

func TestFilterSeverity(t *testing.T) {
	in := []types.Candidate{{Zone: 5, Acceptance: 2}, {Zone: 1, Acceptance: 0}, {Zone: 3, Acceptance: 1}, {Zone: 4, Acceptance: 3}}
	for threshold := -1; threshold <= 4; threshold++ {
		var want []types.Candidate
		for _, c := range in {
			if c.Acceptance <= threshold {
				want = append(want, c)
			}
		}
		got := FilterSeverity(in, threshold)
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("threshold=%d 结果不符 (-want +got):\n%s", threshold, diff)
		}
	}
}

func TestSortByPriority(t *testing.T) {
	order := []types.ZoneID{31, 10, 31, 50, 7}
	in := []types.Candidate{{Zone: 10, Acceptance: 0}, {Zone: 50, Acceptance: 1}, {Zone: 31, Acceptance: 0}, {Zone: 99, Acceptance: 0}}

	got := SortByPriority(in, order)
	want := []types.Candidate{{Zone: 31, Acceptance: 0}, {Zone: 10, Acceptance: 0}, {Zone: 50, Acceptance: 1}}
	assert.Equal(t, want, got, "不在顺序中的区域被丢弃，重复项只输出一次")

	// 幂等
	assert.Equal(t, got, SortByPriority(got, order))

	// 与输入顺序无关
	reversed := []types.Candidate{in[3], in[2], in[1], in[0]}
	assert.Equal(t, got, SortByPriority(reversed, order))

	assert.Empty(t, SortByPriority(in, nil))
}

func TestSelectScenarios(t *testing.T) {
	zones, transitions := fixture(t)
	one := []types.Candidate{{Zone: 10, Acceptance: 0}}

	t.Run("fits budget", func(t *testing.T) {
		sel, err := Select(one, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "A"})
		require.NoError(t, err)
		assert.Equal(t, one, sel.Zones)
		assert.Equal(t, 5.0, sel.TheoreticalWorkingTime)
		assert.False(t, sel.BudgetExceeded)
		require.Len(t, sel.Records, 1)
		assert.Equal(t, types.TimingRecord{
			InputZone: 10, Acceptance: 0, TransitionPoints: "A B", TransitionTime: 2.0, SteamingTime: 3.0,
		}, sel.Records[0])
	})

	t.Run("exceeds budget", func(t *testing.T) {
		sel, err := Select(one, seat, zones, transitions, Budget{CycleTime: 4, StartingPoint: "A"})
		require.NoError(t, err)
		assert.Empty(t, sel.Zones)
		assert.Empty(t, sel.Records)
		assert.True(t, sel.BudgetExceeded)
		assert.Equal(t, 0.0, sel.TheoreticalWorkingTime)
	})

	t.Run("empty sequence", func(t *testing.T) {
		sel, err := Select(nil, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "A", InitialCumulated: 3})
		require.NoError(t, err)
		assert.Empty(t, sel.Zones)
		assert.Equal(t, 0.0, sel.TheoreticalWorkingTime)
	})
}

func TestSelectStopsAtFirstOverflow(t *testing.T) {
	zones, transitions := fixture(t)
	// 10: A→B 2 + 3 = 5；31: B→C 1.5 + 1*2 = 3.5 (累计 8.5)；50: C→B 1.5 + 2 = 3.5 (累计 12)
	seq := []types.Candidate{{Zone: 10, Acceptance: 0}, {Zone: 31, Acceptance: 0}, {Zone: 50, Acceptance: 1}}

	sel, err := Select(seq, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "A"})
	require.NoError(t, err)
	assert.Equal(t, seq[:2], sel.Zones)
	assert.True(t, sel.BudgetExceeded)
	assert.Equal(t, 8.5, sel.TheoreticalWorkingTime)
	assert.LessOrEqual(t, sel.TheoreticalWorkingTime, 10.0)
	assert.Equal(t, "B C", sel.Records[1].TransitionPoints)

	all, err := Select(seq, seat, zones, transitions, Budget{CycleTime: 12, StartingPoint: "A"})
	require.NoError(t, err)
	assert.Equal(t, seq, all.Zones, "恰好等于预算时应被接受")
	assert.Equal(t, 12.0, all.TheoreticalWorkingTime)
	assert.False(t, all.BudgetExceeded)
}

func TestSelectPrefixStability(t *testing.T) {
	zones, transitions := fixture(t)
	seq := []types.Candidate{{Zone: 10, Acceptance: 0}, {Zone: 31, Acceptance: 0}, {Zone: 50, Acceptance: 1}}
	budget := Budget{CycleTime: 100, StartingPoint: "A"}

	full, err := Select(seq, seat, zones, transitions, budget)
	require.NoError(t, err)
	prev := 0.0
	for n := 1; n <= len(seq); n++ {
		prefix, err := Select(seq[:n], seat, zones, transitions, budget)
		require.NoError(t, err)
		if diff := cmp.Diff(full.Zones[:n], prefix.Zones); diff != "" {
			t.Fatalf("前缀 %d 的选择发生变化 (-full +prefix):\n%s", n, diff)
		}
		assert.GreaterOrEqual(t, prefix.TheoreticalWorkingTime, prev, "累计时间必须单调不减")
		prev = prefix.TheoreticalWorkingTime
	}
}

func TestSelectInitialCumulated(t *testing.T) {
	zones, transitions := fixture(t)
	one := []types.Candidate{{Zone: 10, Acceptance: 0}}

	sel, err := Select(one, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "A", InitialCumulated: 4.25})
	require.NoError(t, err)
	assert.Len(t, sel.Zones, 1)
	assert.Equal(t, 9.3, sel.TheoreticalWorkingTime, "结果保留一位小数")

	sel, err = Select(one, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "A", InitialCumulated: 6})
	require.NoError(t, err)
	assert.Empty(t, sel.Zones)
	assert.Equal(t, 6.0, sel.TheoreticalWorkingTime)
}

func TestSelectMissingKeys(t *testing.T) {
	zones, transitions := fixture(t)

	_, err := Select([]types.Candidate{{Zone: 10, Acceptance: 3}}, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrZoneNotFound)
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, seat.Key(types.Candidate{Zone: 10, Acceptance: 3}), lookupErr.Key)

	_, err = Select([]types.Candidate{{Zone: 10, Acceptance: 0}}, seat, zones, transitions, Budget{CycleTime: 10, StartingPoint: "HOME"})
	assert.ErrorIs(t, err, ErrTransitionNotFound)
}

func TestFormatCommands(t *testing.T) {
	zones, _ := fixture(t)

	rows := FormatCommands(nil, seat, zones, types.ProgramNumberOf("473"), "G4802412", DefaultParameters, discardLogger())
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"473", "G4802412", nil, nil, nil, nil, nil, nil, nil, nil, nil}, rows[0].Values())

	selected := []types.Candidate{{Zone: 31, Acceptance: 0}, {Zone: 77, Acceptance: 0}}
	rows = FormatCommands(selected, seat, zones, types.ProgramNumberOf("473"), "G4802412", DefaultParameters, discardLogger())
	require.Len(t, rows, 3)
	assert.Equal(t, []any{1, 31, 12.0, 1, 25.0, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0}, rows[1].Values())
	assert.Equal(t, []any{2, 77, 10.0, 0, 20.0, 0.0, 0.0, 50.0, 0.0, 0.0, 50.0}, rows[2].Values(), "缺少描述时使用默认参数")
	for _, r := range rows {
		assert.Len(t, r.Values(), types.CommandRowWidth)
	}
}

func TestRulesPlan(t *testing.T) {
	zones, transitions := fixture(t)
	zones.Add(types.ZoneKey{PlantProject: "R8", Zone: 60, Acceptance: 3, CoverMaterial: "Tissu_Tep"}, types.ZoneDescriptor{TransitionPoint: "A"})
	rules := NewRules(zones, transitions, 1, DefaultParameters, discardLogger())

	candidates := map[types.ZoneID]int{50: 1, 10: 0, 60: 3, 31: 0}
	plan, err := rules.Plan(candidates, seat, Budget{CycleTime: 10, StartingPoint: "A"}, types.ProgramNumberOf("473"), "SN1")
	require.NoError(t, err)
	assert.Equal(t, []types.Candidate{{Zone: 10, Acceptance: 0}, {Zone: 31, Acceptance: 0}}, plan.Zones)
	assert.Equal(t, 8.5, plan.TheoreticalWorkingTime)
	assert.Len(t, plan.Commands, 3)

	plan, err = rules.Plan(map[types.ZoneID]int{}, seat, Budget{CycleTime: 10, StartingPoint: "A"}, types.ProgramNumberOf("473"), "SN1")
	require.NoError(t, err)
	assert.Empty(t, plan.Zones)
	assert.Equal(t, 0.0, plan.TheoreticalWorkingTime)
	assert.Len(t, plan.Commands, 1, "只有表头行")

	plan, err = rules.Plan(candidates, Seat{PlantProject: "XX", CoverMaterial: "Cuir"}, Budget{CycleTime: 10, StartingPoint: "A"}, types.ProgramNumberOf("473"), "SN1")
	require.NoError(t, err, "未知项目不是错误")
	assert.Empty(t, plan.Zones)
}
