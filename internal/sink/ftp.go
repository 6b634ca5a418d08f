package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"steaming-robot/internal/types"
)

// FTPConfig 机器人 FTP 服务的连接参数
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// FTPSink 通过 FTP 将指令文件推送到机器人控制器
type FTPSink struct {
	cfg    FTPConfig
	Target Target
	logger *slog.Logger
}

// NewFTPSink 创建一个 FTP 推送目标
func NewFTPSink(cfg FTPConfig, target Target, logger *slog.Logger) *FTPSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &FTPSink{
		cfg:    cfg,
		Target: target,
		logger: logger.With("component", "sink", "sink", "ftp", "remote", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
	}
}

func (s *FTPSink) Name() string { return "ftp" }

// Push 连接、登录、被动模式 STOR <dir>/<file>，最后断开
func (s *FTPSink) Push(ctx context.Context, rows []types.CommandRow) error {
	logger := loggerFor(ctx, s.logger)

	data, err := EncodeCSV(rows)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.cfg.Timeout),
		ftp.DialWithDisabledEPSV(true), // 控制器只支持 PASV
	)
	if err != nil {
		return fmt.Errorf("连接 FTP 服务失败: %w", err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			logger.Debug("关闭 FTP 连接失败", "error", err)
		}
	}()

	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		return fmt.Errorf("FTP 登录失败: %w", err)
	}
	logger.Info("FTP 连接成功")

	if err := conn.Stor(s.Target.Path(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("FTP 上传 %s 失败: %w", s.Target.Path(), err)
	}
	logger.Info("指令文件已推送", "path", s.Target.Path(), "rows", len(rows))
	return nil
}
