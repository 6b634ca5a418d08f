package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"steaming-robot/internal/types"
)

// MountedSink 将指令文件写入挂载到机器人控制器的目录
type MountedSink struct {
	Root   string // 挂载根目录
	Target Target
	logger *slog.Logger
}

// NewMountedSink 创建一个挂载目录推送目标
func NewMountedSink(root string, target Target, logger *slog.Logger) *MountedSink {
	return &MountedSink{
		Root:   root,
		Target: target,
		logger: logger.With("component", "sink", "sink", "mounted"),
	}
}

func (s *MountedSink) Name() string { return "mounted" }

// Push 写入 <root>/<dir>/<file>，目录不存在时自动创建
func (s *MountedSink) Push(ctx context.Context, rows []types.CommandRow) error {
	data, err := EncodeCSV(rows)
	if err != nil {
		return err
	}

	dir := filepath.Join(s.Root, s.Target.Directory)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	path := filepath.Join(dir, s.Target.FileName)
	loggerFor(ctx, s.logger).Info("写入指令文件", "path", path, "rows", len(rows))

	// 先写临时文件再改名，机器人不会读到半个文件
	tmp, err := os.CreateTemp(dir, "."+s.Target.FileName+"-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入指令文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("替换指令文件失败: %w", err)
	}
	return nil
}
