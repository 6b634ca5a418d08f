package trajectory

import (
	"sort"

	"steaming-robot/internal/types"
)

// CandidateList 将区域→等级映射转换为按区域编号排序的列表
func CandidateList(candidates map[types.ZoneID]int) []types.Candidate {
	list := make([]types.Candidate, 0, len(candidates))
	for zone, acceptance := range candidates {
		list = append(list, types.Candidate{Zone: zone, Acceptance: acceptance})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Zone < list[j].Zone })
	return list
}

// FilterSeverity 只保留等级 <= threshold 的候选 (等级越低越严重)，不改变顺序
func FilterSeverity(candidates []types.Candidate, threshold int) []types.Candidate {
	kept := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Acceptance <= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// SortByPriority 按规范区域顺序输出候选。顺序中重复的区域只取第一次，
// 不在顺序中的候选被丢弃
func SortByPriority(candidates []types.Candidate, order []types.ZoneID) []types.Candidate {
	byZone := make(map[types.ZoneID]types.Candidate, len(candidates))
	for _, c := range candidates {
		if _, dup := byZone[c.Zone]; !dup {
			byZone[c.Zone] = c
		}
	}

	sorted := make([]types.Candidate, 0, len(candidates))
	emitted := make(map[types.ZoneID]bool, len(order))
	for _, zone := range order {
		if emitted[zone] {
			continue
		}
		emitted[zone] = true
		if c, ok := byZone[zone]; ok {
			sorted = append(sorted, c)
		}
	}
	return sorted
}
