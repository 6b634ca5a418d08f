package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"steaming-robot/internal/metrics"
	"steaming-robot/internal/sink"
	"steaming-robot/internal/transport"
)

// Config 定义服务的运行配置
// 使用 mapstructure 标签映射配置文件字段，每个键同时绑定同名的大写环境变量
type Config struct {
	AMQPURL          string `mapstructure:"amqp_url"`           // 完整连接串，优先于 amqp_host
	AMQPHost         string `mapstructure:"amqp_host"`          // 消息队列主机
	InputExchange    string `mapstructure:"input_exchange"`     // 入站 exchange
	OutputExchange   string `mapstructure:"output_exchange"`    // 出站 exchange
	InputRoutingKey  string `mapstructure:"input_routing_key"`  // 入站队列绑定键
	OutputRoutingKey string `mapstructure:"output_routing_key"` // 出站发布路由键

	RobotIPAddress        string `mapstructure:"robot_ip_address"`        // 机器人 FTP 地址
	RobotPort             int    `mapstructure:"robot_port"`              // 机器人 FTP 端口
	FTPUser               string `mapstructure:"ftp_user"`                // FTP 用户
	FTPPassword           string `mapstructure:"ftp_password"`            // FTP 密码
	MountingMode          bool   `mapstructure:"mounting_mode"`           // true 时写入挂载目录而不是 FTP
	RobotOutputPath       string `mapstructure:"robot_output_path"`       // 挂载模式的根目录
	ServerOutputDirectory string `mapstructure:"server_output_directory"` // 指令文件目录
	InputOrderFileName    string `mapstructure:"input_order_file_name"`   // 指令文件名

	BlobConnectionString string `mapstructure:"blob_storage_connection_string"` // 为空时不归档
	BlobContainerName    string `mapstructure:"blob_container_name"`

	MetricsPort        int    `mapstructure:"metrics_port"`
	HTTPAddr           string `mapstructure:"http_addr"`
	WALPath            string `mapstructure:"wal_path"`
	ConfigDirDefault   string `mapstructure:"config_dir_default"`
	ConfigDirRequested string `mapstructure:"config_dir_requested"`

	DeviceID       string `mapstructure:"iotedge_deviceid"`
	IothubHostname string `mapstructure:"iotedge_iothubhostname"`
	ModuleID       string `mapstructure:"iotedge_moduleid"`
	LogLevel       string `mapstructure:"log_level"`
}

// defaults 与部署环境约定的默认值
var defaults = map[string]interface{}{
	"amqp_url":                       "",
	"amqp_host":                      "localhost",
	"input_exchange":                 "robot_input",
	"output_exchange":                "robot_output",
	"input_routing_key":              "#",
	"output_routing_key":             "",
	"robot_ip_address":               "127.0.0.1",
	"robot_port":                     2121,
	"ftp_user":                       "user",
	"ftp_password":                   "password",
	"mounting_mode":                  false,
	"robot_output_path":              "robot_output_folder",
	"server_output_directory":        "Aivi_Output",
	"input_order_file_name":          "orders.csv",
	"blob_storage_connection_string": "",
	"blob_container_name":            "stlocal",
	"metrics_port":                   9605,
	"http_addr":                      ":8080",
	"wal_path":                       "events.wal",
	"config_dir_default":             "default_configuration",
	"config_dir_requested":           "requested_configuration",
	"iotedge_deviceid":               "",
	"iotedge_iothubhostname":         "",
	"iotedge_moduleid":               "",
	"log_level":                      "INFO",
}

// LoadConfig 从 dir 下可选的 config.yaml 和环境变量加载配置
// 环境变量优先于配置文件，配置文件不存在时只使用默认值和环境变量
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // 配置文件名称 (不带扩展名)
	v.SetConfigType("yaml")   // 配置文件类型
	v.AddConfigPath(dir)      // 查找配置文件的路径
	v.AutomaticEnv()          // 键名大写即环境变量名，例如 amqp_host → AMQP_HOST

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.RobotPort <= 0 || c.RobotPort > 65535 {
		return fmt.Errorf("robot_port 超出范围: %d", c.RobotPort)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port 超出范围: %d", c.MetricsPort)
	}
	if c.InputOrderFileName == "" {
		return errors.New("input_order_file_name 不能为空")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// AMQP 消息队列连接参数
func (c *Config) AMQP() transport.AMQPConfig {
	url := c.AMQPURL
	if url == "" {
		url = "amqp://guest:guest@" + net.JoinHostPort(c.AMQPHost, "5672") + "/"
	}
	return transport.AMQPConfig{
		URL:              url,
		InputExchange:    c.InputExchange,
		OutputExchange:   c.OutputExchange,
		InputRoutingKey:  c.InputRoutingKey,
		OutputRoutingKey: c.OutputRoutingKey,
		Prefetch:         1,
	}
}

// Target 指令文件的目标目录与文件名
func (c *Config) Target() sink.Target {
	return sink.Target{Directory: c.ServerOutputDirectory, FileName: c.InputOrderFileName}
}

// FTP 机器人 FTP 连接参数
func (c *Config) FTP() sink.FTPConfig {
	return sink.FTPConfig{
		Host:     c.RobotIPAddress,
		Port:     c.RobotPort,
		User:     c.FTPUser,
		Password: c.FTPPassword,
		Timeout:  5 * time.Second,
	}
}

// OrderSink 按 mounting_mode 选择指令文件推送目标
func (c *Config) OrderSink(logger *slog.Logger) sink.OrderSink {
	if c.MountingMode {
		return sink.NewMountedSink(c.RobotOutputPath, c.Target(), logger)
	}
	return sink.NewFTPSink(c.FTP(), c.Target(), logger)
}

// MetricsLabels 指标的部署标签
func (c *Config) MetricsLabels() metrics.Labels {
	return metrics.Labels{
		DeviceID:       c.DeviceID,
		IothubHostname: c.IothubHostname,
		ModuleID:       c.ModuleID,
	}
}

// MetricsAddr 指标服务监听地址
func (c *Config) MetricsAddr() string {
	return ":" + strconv.Itoa(c.MetricsPort)
}

// ParseLogLevel 解析 DEBUG/INFO/WARN/ERROR，空串视为 INFO
func ParseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(raw) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("无法识别的日志级别 %q: %w", raw, err)
	}
	return level, nil
}
