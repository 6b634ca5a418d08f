package tables

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// readTable 读取带表头的分隔文本，字段两端空白被去除
func readTable(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("解析表格失败: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, ErrEmptyTable
	}

	header := trimAll(records[0])
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		rec = trimAll(rec)
		if isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}

// field 按列号取值，缺失的列视为空字符串
func field(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}
