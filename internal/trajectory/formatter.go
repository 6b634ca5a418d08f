package trajectory

import (
	"log/slog"

	"steaming-robot/internal/types"
)

// DefaultParameters 区域缺少描述时使用的默认机器人参数
var DefaultParameters = types.Parameters{
	Speed:        10,
	Steam:        0,
	Pressure:     20,
	InputOffset:  types.Offset{X: 0, Y: 0, Z: 50},
	OutputOffset: types.Offset{X: 0, Y: 0, Z: 50},
}

// FormatCommands 生成机器人指令行：一行表头，随后每个区域一行 (序号从 1 开始)
func FormatCommands(selected []types.Candidate, seat Seat, zones ZoneLookup, programNumber types.ProgramNumber, serialNumber string,
	defaults types.Parameters, logger *slog.Logger) []types.CommandRow {
	rows := make([]types.CommandRow, 0, len(selected)+1)
	rows = append(rows, types.HeaderRow(programNumber, serialNumber))

	for i, c := range selected {
		row := types.CommandRow{Position: i + 1, Zone: c.Zone, Params: defaults}
		if desc, ok := zones.Lookup(seat.Key(c)); ok {
			row.Params = desc.Parameters
		} else {
			logger.Warn("配置文件中不存在该区域，使用默认参数", "zone", c.Zone, "acceptance", c.Acceptance,
				"plant_project", seat.PlantProject, "cover_material", seat.CoverMaterial)
		}
		rows = append(rows, row)
	}
	return rows
}
