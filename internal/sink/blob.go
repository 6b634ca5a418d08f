package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"steaming-robot/internal/types"
)

// ErrMissingArchiveMetadata 事件缺少生成归档路径所需的元数据
var ErrMissingArchiveMetadata = errors.New("sink: missing archive metadata")

// blobUploader azblob.Client 中归档用到的部分
type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// Archiver 将每个座椅的指令文件归档到 Blob 存储
type Archiver struct {
	client    blobUploader
	container string
	logger    *slog.Logger
}

// NewArchiver 通过连接字符串创建归档器，容器不存在时自动创建
func NewArchiver(ctx context.Context, connectionString, container string, logger *slog.Logger) (*Archiver, error) {
	logger = logger.With("component", "archiver", "container", container)

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 Blob 客户端失败: %w", err)
	}

	logger.Info("检查 Blob 容器")
	if _, err := client.CreateContainer(ctx, container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("创建 Blob 容器失败: %w", err)
		}
	} else {
		logger.Warn("Blob 容器不存在，已创建")
	}

	return &Archiver{client: client, container: container, logger: logger}, nil
}

func (a *Archiver) Name() string { return "blob" }

// Archive 上传与推送给机器人相同的 CSV 内容，已存在的同名 Blob 会被覆盖
func (a *Archiver) Archive(ctx context.Context, meta types.Metadata, rows []types.CommandRow) (string, error) {
	name, err := BlobName(meta)
	if err != nil {
		return "", err
	}
	data, err := EncodeCSV(rows)
	if err != nil {
		return "", err
	}
	if _, err := a.client.UploadBuffer(ctx, a.container, name, data, nil); err != nil {
		return name, fmt.Errorf("上传 Blob %s 失败: %w", name, err)
	}
	loggerFor(ctx, a.logger).Info("指令文件已归档", "blob", name)
	return name, nil
}

// triggerTimeLayouts 上游 trigger_time 可能出现的格式
var triggerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTriggerTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range triggerTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析 trigger_time %q", raw)
}

// BlobName raw/{country}_{plant}/{station_full_id}/{yyyy}/{mm}/{dd}/{pipeline_id}_robot_orders.csv
func BlobName(meta types.Metadata) (string, error) {
	if meta.StationInfo == nil || meta.PipelineID == "" {
		return "", ErrMissingArchiveMetadata
	}
	ts, err := parseTriggerTime(meta.TriggerTime)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingArchiveMetadata, err)
	}
	si := meta.StationInfo
	return fmt.Sprintf("raw/%s_%s/%s/%04d/%02d/%02d/%s_robot_orders.csv",
		si.Country, si.Plant, si.StationFullID, ts.Year(), int(ts.Month()), ts.Day(), meta.PipelineID), nil
}
