package tables

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"steaming-robot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

const zoneCSV = `plant_project, zone_number, acceptance, cover_material, time, input_offset_x, input_offset_y, input_offset_z, output_offset_x, output_offset_y, output_offset_z, transition_point, steam, speed, trajectory_occurence, pressure
R8, 10, 0, Tissu_Tep, 3.0, 0, 0, 50, 0, 0, 50, B, 1, 10, 1, 20
R8, 31, 0, Tissu_Tep, 2.5, 1, 2, 3, 4, 5, 6, C, 1, 12, 2, 25
R8, 10, 0, Tissu_Tep, 9.9, 0, 0, 0, 0, 0, 0, Z, 0, 0, 1, 0
R8, 50, 1, Tissu_Tep, abc, 0, 0, 50, 0, 0, 50, B, 1, 10, 1, 20
R9, 7, 0, Cuir, 1.0, 0, 0, 50, 0, 0, 50, A, 1, 10, 1, 20
`

const transitionCSV = `point, A, B, C
A, 0, 2.0, 4.5
B, 2.0, 0, 1.5
C, 4.5, x, 0
`

func TestLoadZoneTable(t *testing.T) {
	table, err := LoadZoneTable(strings.NewReader(zoneCSV), discardLogger())
	require.NoError(t, err)

	// 重复键和无效行都不计入
	assert.Equal(t, 3, table.Len())

	d, ok := table.Lookup(types.ZoneKey{PlantProject: "R8", Zone: 10, Acceptance: 0, CoverMaterial: "Tissu_Tep"})
	require.True(t, ok)
	assert.Equal(t, 3.0, d.SteamingTime, "重复键应保留第一次出现的值")
	assert.Equal(t, "B", d.TransitionPoint)
	assert.Equal(t, 1, d.TrajectoryRepeat)
	assert.Equal(t, types.Offset{X: 0, Y: 0, Z: 50}, d.InputOffset)

	d, ok = table.Lookup(types.ZoneKey{PlantProject: "R8", Zone: 31, Acceptance: 0, CoverMaterial: "Tissu_Tep"})
	require.True(t, ok)
	assert.Equal(t, types.Offset{X: 4, Y: 5, Z: 6}, d.OutputOffset)
	assert.Equal(t, 12.0, d.Speed)
	assert.Equal(t, 25.0, d.Pressure)

	_, ok = table.Lookup(types.ZoneKey{PlantProject: "R8", Zone: 10, Acceptance: 0, CoverMaterial: "Cuir"})
	assert.False(t, ok, "部分键匹配不应命中")
}

func TestZoneTablePriorityOrder(t *testing.T) {
	table, err := LoadZoneTable(strings.NewReader(zoneCSV), discardLogger())
	require.NoError(t, err)

	order, ok := table.PriorityOrder("R8")
	require.True(t, ok)
	assert.Equal(t, []types.ZoneID{10, 31}, order, "无效行不进入顺序，重复项折叠为第一次出现")

	_, ok = table.PriorityOrder("UNKNOWN")
	assert.False(t, ok)
}

func TestLoadZoneTableMissingColumn(t *testing.T) {
	_, err := LoadZoneTable(strings.NewReader("plant_project,zone_number\nR8,10\n"), discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadZoneTableEmpty(t *testing.T) {
	_, err := LoadZoneTable(strings.NewReader(""), discardLogger())
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestLoadTransitionTable(t *testing.T) {
	table, err := LoadTransitionTable(strings.NewReader(transitionCSV), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 8, table.Len(), "非数值单元格被丢弃")

	c, ok := table.Cost("A", "B")
	require.True(t, ok)
	assert.Equal(t, 2.0, c)

	c, ok = table.Cost("C", "A")
	require.True(t, ok)
	assert.Equal(t, 4.5, c)

	_, ok = table.Cost("C", "B")
	assert.False(t, ok)
}

func TestCheckConsistency(t *testing.T) {
	zones := NewZoneTable()
	zones.Add(types.ZoneKey{PlantProject: "R8", Zone: 1}, types.ZoneDescriptor{TransitionPoint: "A"})
	zones.Add(types.ZoneKey{PlantProject: "R8", Zone: 2}, types.ZoneDescriptor{TransitionPoint: "B"})

	transitions := NewTransitionTable()
	transitions.Set("A", "B", 1)
	transitions.Set("B", "A", 1)
	assert.True(t, CheckConsistency(zones, transitions))

	// B 只作为列出现
	onlyColumn := NewTransitionTable()
	onlyColumn.Set("A", "B", 1)
	onlyColumn.Set("A", "A", 0)
	assert.False(t, CheckConsistency(zones, onlyColumn))

	rows, cols := MissingTransitionPoints(zones, onlyColumn)
	assert.Equal(t, []string{"B"}, rows)
	assert.Empty(t, cols)
}

func TestLoadTableFiles(t *testing.T) {
	dir := t.TempDir()
	zonePath := filepath.Join(dir, "zone_time_mapping.csv")
	transitionPath := filepath.Join(dir, "transition_time_table.csv")
	require.NoError(t, os.WriteFile(zonePath, []byte(zoneCSV), 0644))
	require.NoError(t, os.WriteFile(transitionPath, []byte(transitionCSV), 0644))

	zones, err := LoadZoneTableFile(zonePath, discardLogger())
	require.NoError(t, err)
	transitions, err := LoadTransitionTableFile(transitionPath, discardLogger())
	require.NoError(t, err)
	assert.True(t, CheckConsistency(zones, transitions))

	_, err = LoadZoneTableFile(filepath.Join(dir, "missing.csv"), discardLogger())
	assert.Error(t, err)
}
