package trajectory

import (
	"steaming-robot/internal/types"
)

// BuckleExclusions 每个安全带传感器位置失效时需要排除的区域
type BuckleExclusions map[types.BuckleLocation][]types.ZoneID

// FilterBuckles 根据安全带传感器读数过滤候选区域。
//
//   - 未提供读数：原样返回
//   - 任一位置为 UNKNOWN：返回 unknown=true，调用方必须放弃本座椅的熨烫
//   - 位置为 KO：移除该位置配置的全部区域
//
// 输入的 map 不会被修改
func FilterBuckles(candidates map[types.ZoneID]int, reading *types.BuckleDecision, exclusions BuckleExclusions) (map[types.ZoneID]int, bool) {
	if reading == nil {
		return candidates, false
	}

	states := reading.Readings()
	for _, loc := range types.BuckleLocations {
		if states[loc] == types.SensorUnknown {
			return candidates, true
		}
	}

	filtered := make(map[types.ZoneID]int, len(candidates))
	for zone, acceptance := range candidates {
		filtered[zone] = acceptance
	}
	for _, loc := range types.BuckleLocations {
		if states[loc] != types.SensorFailed {
			continue
		}
		for _, zone := range exclusions[loc] {
			delete(filtered, zone)
		}
	}
	return filtered, false
}
