package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"steaming-robot/internal/event"
	"steaming-robot/internal/fsm"
	"steaming-robot/internal/sink"
	"steaming-robot/internal/trajectory"
	"steaming-robot/internal/types"
	"steaming-robot/internal/util"
)

var (
	// ErrInvalidZoneID 褶皱检测结果中的区域编号不是整数
	ErrInvalidZoneID = errors.New("decision: invalid zone id")
	// ErrInvalidProgramNumber 座椅程序号不是整数
	ErrInvalidProgramNumber = errors.New("decision: invalid program number")
	// ErrInvalidAcceptance 可接受度等级不是整数
	ErrInvalidAcceptance = errors.New("decision: invalid acceptance level")
)

// 决策记录中的状态说明
const (
	StateNoSeat         = "seat not recognised, no information sent to robot"
	StateWrinklesFailed = "Wrinkles wrong result, no information sent to robot"
	StateError          = "error occurred, no information sent to robot"
	PlantNotRecognised  = "not recognised"
)

// DefaultNotSteamProgram 约定的“不熨烫”程序号
const DefaultNotSteamProgram = 99

// Settings 决策所需的机器人模块配置
type Settings struct {
	CycleTime       float64
	StartingPoint   string
	CumulatedTime   float64
	UploadEnabled   bool
	NotSteamProgram int
	Buckles         trajectory.BuckleExclusions
}

func (s Settings) budget() trajectory.Budget {
	return trajectory.Budget{
		CycleTime:        s.CycleTime,
		StartingPoint:    s.StartingPoint,
		InitialCumulated: s.CumulatedTime,
	}
}

// Decision 单个入站事件的决策结果
type Decision struct {
	Record   types.DecisionRecord
	Outcome  fsm.State   // 终态
	Path     []fsm.State // 经过的全部状态
	Reason   string      // 跳过熨烫的原因 (免熨烫规则等)
	Err      error       // 评估失败的原因
	Duration time.Duration
}

// Orchestrator 组合安全带过滤、轨迹规划与指令推送，为每个事件产生一条决策记录
// 同一实例不允许并发调用 Decide
type Orchestrator struct {
	rules    *trajectory.Rules
	settings Settings
	bypass   *BypassRules
	sink     sink.OrderSink
	bus      *event.Bus
	logger   *slog.Logger
}

// NewOrchestrator 创建决策编排器。orderSink 为 nil 时不推送指令文件，bus 可以为 nil
func NewOrchestrator(rules *trajectory.Rules, settings Settings, bypass *BypassRules, orderSink sink.OrderSink, bus *event.Bus, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		rules:    rules,
		settings: settings,
		bypass:   bypass,
		sink:     orderSink,
		bus:      bus,
		logger:   logger.With("component", "decision"),
	}
}

// Settings 返回当前配置
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// Decide 对一个入站事件做出熨烫决策。评估路径上的任何错误 (包括 panic)
// 都会被转换成 Failed 决策记录，不会向调用方传播
func (o *Orchestrator) Decide(ctx context.Context, ev types.InboundEvent) (d Decision) {
	start := time.Now()
	serial := ev.Metadata.SerialNumber
	logger := o.logger.With("serial_number", serial)
	traceID, _ := util.TraceIDFromContext(ctx)
	if traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	machine := o.newMachine(serial)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("决策过程出现异常，本座椅跳过", "panic", r)
			d = o.fail(machine, fmt.Errorf("panic: %v", r))
			d.Outcome = fsm.StateFailed
		} else if state := machine.Current(); !fsm.IsTerminal(state) {
			logger.Error("决策停在非终态，本座椅跳过", "state", state)
			d = o.fail(machine, fmt.Errorf("decision stopped in state %s", state))
			d.Outcome = fsm.StateFailed
		} else {
			d.Outcome = state
		}
		d.Path = machine.History()
		d.Duration = time.Since(start)

		record := d.Record
		o.publish(event.Event{
			Type: event.DecisionMade, TraceID: traceID, SerialNumber: serial,
			Outcome: d.Outcome, Record: &record, Duration: d.Duration, Error: d.Err,
		})
	}()

	logger.Info("开始熨烫决策")
	return o.decide(ctx, ev, machine, logger)
}

func (o *Orchestrator) decide(ctx context.Context, ev types.InboundEvent, machine *fsm.FSM, logger *slog.Logger) Decision {
	seat := ev.Metadata.SeatInfo
	if !seat.Recognised() {
		logger.Error("未识别到座椅元数据，跳过机器人节点")
		o.fire(machine, fsm.EventSeatMissing)
		return Decision{Record: NoSeatRecord(o.settings.CycleTime)}
	}

	wrinkles := ev.Models.WrinkleDetector
	if !wrinkles.Succeed {
		logger.Info("褶皱模型没有给出正确结果，不生成指令文件")
		o.fire(machine, fsm.EventWrinklesFailed)
		return Decision{Record: WrinklesFailedRecord(o.settings.CycleTime)}
	}

	programNumber := seat.ProgramNumber
	program, err := programNumber.Int()
	if err != nil {
		return o.fail(machine, fmt.Errorf("%w: %q", ErrInvalidProgramNumber, programNumber.Text))
	}
	candidates, err := ParseCandidates(wrinkles.PredictedAcceptancePerZone)
	if err != nil {
		return o.fail(machine, err)
	}

	record := types.DecisionRecord{
		Steaming:               false,
		PlantProject:           seat.PlantProject,
		SteamingSequenceRecord: []types.TimingRecord{},
		CommandRows:            []types.CommandRow{types.HeaderRow(programNumber, ev.Metadata.SerialNumber)},
		CycleTime:              o.settings.CycleTime,
	}
	d := Decision{}

	buckle := ev.Decisions.FrontBuckleBelt
	if buckle != nil {
		logger.Info("安全带检测结果", "left", buckle.Left, "central", buckle.Central, "right", buckle.Right)
	}
	kept, unknown := trajectory.FilterBuckles(candidates, buckle, o.settings.Buckles)

	bypassSeat := BypassSeat{ProgramNumber: strings.TrimSpace(programNumber.Text), PlantProject: seat.PlantProject, CoverMaterial: seat.CoverMaterial}
	switch {
	case unknown:
		logger.Info("安全带状态未知，不熨烫")
		o.fire(machine, fsm.EventBuckleUnknown)
		o.fire(machine, fsm.EventSkip)
		d.Reason = "buckle state unknown"
	case program == o.settings.NotSteamProgram:
		logger.Info("程序号为不熨烫程序，不熨烫", "program_number", program)
		o.fire(machine, fsm.EventBypass)
		o.fire(machine, fsm.EventSkip)
		d.Reason = "program not to steam"
	default:
		if rule, hit := o.bypass.Match(bypassSeat, ev.Metadata.SerialNumber); hit {
			logger.Info("命中免熨烫规则，不熨烫", "rule", rule)
			o.fire(machine, fsm.EventBypass)
			o.fire(machine, fsm.EventSkip)
			d.Reason = "bypass rule: " + rule
			break
		}

		o.fire(machine, fsm.EventEvaluate)
		plan, err := o.rules.Plan(kept,
			trajectory.Seat{PlantProject: seat.PlantProject, CoverMaterial: seat.CoverMaterial},
			o.settings.budget(), programNumber, ev.Metadata.SerialNumber)
		if err != nil {
			logger.Error("轨迹规划失败，本座椅跳过", "error", err)
			return o.fail(machine, err)
		}

		record.SteamingSequenceRecord = plan.Records
		record.CommandRows = plan.Commands
		record.TheoreticalWorkingTime = plan.TheoreticalWorkingTime
		if len(plan.Records) > 0 {
			record.Steaming = true
			o.fire(machine, fsm.EventZonesSelected)
		} else {
			logger.Info("没有需要熨烫的区域")
			o.fire(machine, fsm.EventNothingToSteam)
		}
	}

	if o.settings.UploadEnabled {
		record.UploadFTP = o.upload(ctx, logger, ev.Metadata.SerialNumber, record.CommandRows)
	}
	d.Record = record
	return d
}

// Reject 为无法解析的入站消息生成 Failed 决策，同样发布 DecisionMade
func (o *Orchestrator) Reject(ctx context.Context, serial string, cause error) Decision {
	start := time.Now()
	traceID, _ := util.TraceIDFromContext(ctx)
	o.logger.Error("入站消息无法解析，本座椅跳过", "serial_number", serial, "trace_id", traceID, "error", cause)

	machine := o.newMachine(serial)
	d := o.fail(machine, cause)
	d.Outcome = machine.Current()
	d.Path = machine.History()
	d.Duration = time.Since(start)

	record := d.Record
	o.publish(event.Event{
		Type: event.DecisionMade, TraceID: traceID, SerialNumber: serial,
		Outcome: d.Outcome, Record: &record, Duration: d.Duration, Error: cause,
	})
	return d
}

// upload 推送指令文件，失败只记录警告
func (o *Orchestrator) upload(ctx context.Context, logger *slog.Logger, serial string, rows []types.CommandRow) bool {
	if o.sink == nil {
		return false
	}
	start := time.Now()
	err := o.sink.Push(ctx, rows)
	traceID, _ := util.TraceIDFromContext(ctx)
	o.publish(event.Event{
		Type: event.UploadFinished, TraceID: traceID, SerialNumber: serial,
		Sink: o.sink.Name(), Duration: time.Since(start), Error: err,
	})
	if err != nil {
		logger.Warn("指令文件推送失败", "sink", o.sink.Name(), "error", err)
		return false
	}
	return true
}

// newMachine 创建状态机。进入 ERROR 后由回调直接推进到 FAILED
func (o *Orchestrator) newMachine(serial string) *fsm.FSM {
	machine := fsm.NewFSM(serial)
	machine.RegisterCallback(fsm.StateError, func(targetID string) {
		if err := machine.Fire(fsm.EventFail); err != nil {
			o.logger.Error("无法进入失败终态", "serial_number", targetID, "error", err)
		}
	})
	return machine
}

// fail 生成 Failed 决策。状态机已在终态时保持不变
func (o *Orchestrator) fail(machine *fsm.FSM, err error) Decision {
	_ = machine.Fire(fsm.EventError)
	return Decision{Record: FailedRecord(o.settings.CycleTime), Err: err}
}

func (o *Orchestrator) fire(machine *fsm.FSM, e fsm.Event) {
	if err := machine.Fire(e); err != nil {
		panic(err)
	}
}

func (o *Orchestrator) publish(e event.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// ParseCandidates 将 "区域编号 → 等级" 的检测结果转换为候选区域
func ParseCandidates(raw map[string]json.Number) (map[types.ZoneID]int, error) {
	out := make(map[types.ZoneID]int, len(raw))
	for key, value := range raw {
		zone, err := types.ParseZoneID(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidZoneID, key)
		}
		level, err := parseLevel(value)
		if err != nil {
			return nil, fmt.Errorf("%w: zone %s = %q", ErrInvalidAcceptance, key, value)
		}
		out[zone] = level
	}
	return out, nil
}

func parseLevel(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not integral")
	}
	return int(f), nil
}

func emptyRecord(state, plant string, cycleTime float64) types.DecisionRecord {
	return types.DecisionRecord{
		State:                  state,
		PlantProject:           plant,
		SteamingSequenceRecord: []types.TimingRecord{},
		CommandRows:            []types.CommandRow{},
		CycleTime:              cycleTime,
	}
}

// NoSeatRecord 未识别到座椅时的决策记录
func NoSeatRecord(cycleTime float64) types.DecisionRecord {
	return emptyRecord(StateNoSeat, PlantNotRecognised, cycleTime)
}

// WrinklesFailedRecord 褶皱检测失败时的决策记录
func WrinklesFailedRecord(cycleTime float64) types.DecisionRecord {
	return emptyRecord(StateWrinklesFailed, "", cycleTime)
}

// FailedRecord 评估出错时的决策记录
func FailedRecord(cycleTime float64) types.DecisionRecord {
	return emptyRecord(StateError, PlantNotRecognised, cycleTime)
}
