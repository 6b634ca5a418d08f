package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"steaming-robot/internal/types"
	"steaming-robot/internal/util"
)

// OrderSink 定义机器人指令文件的推送目标
type OrderSink interface {
	Name() string
	Push(ctx context.Context, rows []types.CommandRow) error
}

// Target 指令文件在目标端的目录与文件名
type Target struct {
	Directory string // e.g. Aivi_Output
	FileName  string // e.g. orders.csv
}

// Path 目标端的相对路径
func (t Target) Path() string {
	return t.Directory + "/" + t.FileName
}

// EncodeCSV 将指令行编码为机器人读取的 CSV：表头的空字段为空串，数值不带多余的零
func EncodeCSV(rows []types.CommandRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		values := row.Values()
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("写入指令行失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// loggerFor 带上 trace_id 的子日志器
func loggerFor(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		return logger.With("trace_id", traceID)
	}
	return logger
}
