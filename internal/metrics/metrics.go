package metrics

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "steaming_robot"

// Labels 每个指标都带上的部署标签
type Labels struct {
	DeviceID       string
	InstanceNumber string // 为空时自动生成
	IothubHostname string
	ModuleID       string
}

func (l Labels) constLabels() prometheus.Labels {
	if l.InstanceNumber == "" {
		l.InstanceNumber = uuid.NewString()
	}
	return prometheus.Labels{
		"deviceId":       l.DeviceID,
		"instanceNumber": l.InstanceNumber,
		"iothubHostname": l.IothubHostname,
		"moduleId":       l.ModuleID,
	}
}

// Recorder 熨烫决策服务的 Prometheus 指标
type Recorder struct {
	// EventsInQueue 仪表盘：当前等待决策的事件数量
	EventsInQueue prometheus.Gauge
	// EventsProcessed 计数器：按决策终态分类
	EventsProcessed *prometheus.CounterVec
	// ProcessDuration 摘要：单个事件的决策耗时
	ProcessDuration prometheus.Summary
	// Failures 计数器：评估失败的事件数
	Failures prometheus.Counter
	// TheoreticalWorkingTime 直方图：机器人理论工作时间分布
	TheoreticalWorkingTime prometheus.Histogram
	// SelectedZones 直方图：每个座椅选中的区域数
	SelectedZones prometheus.Histogram
	// Uploads 计数器：指令文件推送/归档结果
	Uploads *prometheus.CounterVec
}

// NewRecorder 在给定的注册器上创建并注册全部指标
func NewRecorder(reg prometheus.Registerer, labels Labels) *Recorder {
	factory := promauto.With(reg)
	cl := labels.constLabels()

	return &Recorder{
		EventsInQueue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "events_in_queue",
			Help: "The number of inbound events waiting for a decision", ConstLabels: cl,
		}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_processed_total",
			Help: "The total number of inbound events by decision outcome", ConstLabels: cl,
		}, []string{"outcome"}),
		ProcessDuration: factory.NewSummary(prometheus.SummaryOpts{
			Namespace: namespace, Name: "summary_process_seconds",
			Help: "Time spent deciding one inbound event", ConstLabels: cl,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "counter_failures_total",
			Help: "The number of events whose evaluation failed", ConstLabels: cl,
		}),
		TheoreticalWorkingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "theoretical_working_time_seconds",
			Help: "Expected robot working time per seat", ConstLabels: cl,
			Buckets: prometheus.LinearBuckets(0, 5, 13),
		}),
		SelectedZones: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "selected_zones",
			Help: "Number of zones selected for steaming per seat", ConstLabels: cl,
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_total",
			Help: "Order file pushes and archives by sink and status", ConstLabels: cl,
		}, []string{"sink", "status"}),
	}
}

// RecordDecision 记录一次决策
func (r *Recorder) RecordDecision(outcome string, duration time.Duration, workingTime float64, zones int, failed bool) {
	r.EventsProcessed.WithLabelValues(outcome).Inc()
	r.ProcessDuration.Observe(duration.Seconds())
	if failed {
		r.Failures.Inc()
		return
	}
	r.TheoreticalWorkingTime.Observe(workingTime)
	r.SelectedZones.Observe(float64(zones))
}

// RecordUpload 记录一次推送或归档
func (r *Recorder) RecordUpload(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.Uploads.WithLabelValues(sink, status).Inc()
}
