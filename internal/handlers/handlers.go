package handlers

import (
	"log/slog"

	"steaming-robot/internal/event"
	"steaming-robot/internal/fsm"
	"steaming-robot/internal/metrics"
	"steaming-robot/internal/types"
	"steaming-robot/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// recorder 和 st 可以为 nil，对应的处理器不注册
func RegisterEventHandlers(bus *event.Bus, recorder *metrics.Recorder, st *web.StateTracker, logger *slog.Logger) {
	logger = logger.With("component", "audit")

	// --- 指标处理器 ---
	if recorder != nil {
		bus.Subscribe(event.DecisionMade, func(e event.Event) {
			var workingTime float64
			var zones int
			if e.Record != nil {
				workingTime = e.Record.TheoreticalWorkingTime
				zones = len(e.Record.SteamingSequenceRecord)
			}
			recorder.RecordDecision(string(e.Outcome), e.Duration, workingTime, zones, e.Outcome == fsm.StateFailed)
		})
		bus.Subscribe(event.UploadFinished, func(e event.Event) {
			recorder.RecordUpload(e.Sink, e.Error)
		})
		bus.Subscribe(event.ArchiveFinished, func(e event.Event) {
			recorder.RecordUpload(e.Sink, e.Error)
		})
	}

	// --- Web UI 处理器 ---
	if st != nil {
		bus.Subscribe(event.EventReceived, func(e event.Event) {
			st.EventReceived()
		})
		bus.Subscribe(event.DecisionMade, func(e event.Event) {
			st.AddDecision(decisionView(e))
		})
	}

	// --- 日志处理器 ---
	bus.Subscribe(event.DecisionMade, func(e event.Event) {
		if e.Outcome == fsm.StateFailed {
			logger.Error("座椅决策失败", "serial_number", e.SerialNumber, "trace_id", e.TraceID, "error", e.Error)
			return
		}
		logger.Info("座椅决策完成", "serial_number", e.SerialNumber, "trace_id", e.TraceID, "outcome", e.Outcome)
	})
	bus.Subscribe(event.UploadFinished, func(e event.Event) {
		if e.Error != nil {
			logger.Warn("指令文件未送达机器人", "serial_number", e.SerialNumber, "sink", e.Sink, "error", e.Error)
		}
	})
}

func decisionView(e event.Event) web.DecisionView {
	v := web.DecisionView{
		SerialNumber: e.SerialNumber,
		TraceID:      e.TraceID,
		Outcome:      string(e.Outcome),
		Zones:        []types.ZoneID{},
		DurationMs:   float64(e.Duration.Microseconds()) / 1000,
		At:           e.At,
	}
	if e.Error != nil {
		v.Error = e.Error.Error()
	}
	if e.Record != nil {
		v.Steaming = e.Record.Steaming
		v.PlantProject = e.Record.PlantProject
		v.TheoreticalWorkingTime = e.Record.TheoreticalWorkingTime
		v.UploadFTP = e.Record.UploadFTP
		for _, r := range e.Record.SteamingSequenceRecord {
			v.Zones = append(v.Zones, r.InputZone)
		}
	}
	return v
}
