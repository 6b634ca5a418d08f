package tables

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"steaming-robot/internal/types"
)

// TransitionTable 过渡点之间的移动耗时 (秒)
type TransitionTable struct {
	costs map[types.TransitionKey]float64
}

// NewTransitionTable 创建一个空的过渡时间表
func NewTransitionTable() *TransitionTable {
	return &TransitionTable{costs: make(map[types.TransitionKey]float64)}
}

// Set 在加载阶段登记一条过渡耗时
func (t *TransitionTable) Set(from, to string, seconds float64) {
	t.costs[types.TransitionKey{From: from, To: to}] = seconds
}

// Cost 查找从 from 到 to 的耗时
func (t *TransitionTable) Cost(from, to string) (float64, bool) {
	c, ok := t.costs[types.TransitionKey{From: from, To: to}]
	return c, ok
}

// Len 返回条目数量
func (t *TransitionTable) Len() int { return len(t.costs) }

// Origins 返回所有出现过的起点 (行标签)
func (t *TransitionTable) Origins() map[string]struct{} {
	out := make(map[string]struct{})
	for k := range t.costs {
		out[k.From] = struct{}{}
	}
	return out
}

// Destinations 返回所有出现过的终点 (列标签)
func (t *TransitionTable) Destinations() map[string]struct{} {
	out := make(map[string]struct{})
	for k := range t.costs {
		out[k.To] = struct{}{}
	}
	return out
}

// LoadTransitionTableFile 从文件加载过渡时间表
func LoadTransitionTableFile(path string, logger *slog.Logger) (*TransitionTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开过渡时间表失败: %w", err)
	}
	defer f.Close()
	return LoadTransitionTable(f, logger.With("file", path))
}

// LoadTransitionTable 解析矩阵形式的过渡时间表：
// 第一列为起点标签，其余列头为终点标签。非数值单元格记录错误后丢弃
func LoadTransitionTable(r io.Reader, logger *slog.Logger) (*TransitionTable, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, err
	}

	table := NewTransitionTable()
	for _, row := range rows {
		from := field(row, 0)
		for col := 1; col < len(header); col++ {
			raw := field(row, col)
			seconds, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				logger.Error("过渡时间值无效", "value", raw, "from", from, "to", header[col])
				continue
			}
			table.Set(from, header[col], seconds)
		}
	}
	logger.Info("过渡时间表加载完成", "entries", table.Len())
	return table, nil
}

// MissingTransitionPoints 返回区域表引用但在过渡表行/列中缺失的过渡点
func MissingTransitionPoints(zones *ZoneTable, transitions *TransitionTable) (missingRows, missingColumns []string) {
	origins := transitions.Origins()
	destinations := transitions.Destinations()
	for point := range zones.TransitionPoints() {
		if _, ok := origins[point]; !ok {
			missingRows = append(missingRows, point)
		}
		if _, ok := destinations[point]; !ok {
			missingColumns = append(missingColumns, point)
		}
	}
	sort.Strings(missingRows)
	sort.Strings(missingColumns)
	return missingRows, missingColumns
}

// CheckConsistency 区域表引用的过渡点必须同时出现在过渡表的行和列中。
// 仅用于诊断，调用方在返回 false 时记录警告后继续运行
func CheckConsistency(zones *ZoneTable, transitions *TransitionTable) bool {
	rows, cols := MissingTransitionPoints(zones, transitions)
	return len(rows) == 0 && len(cols) == 0
}
