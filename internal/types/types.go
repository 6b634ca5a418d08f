package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ZoneID 座椅表面可单独熨烫的区域编号
type ZoneID int

func (z ZoneID) String() string { return strconv.Itoa(int(z)) }

// ParseZoneID 解析事件中以字符串表示的区域编号
func ParseZoneID(raw string) (ZoneID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return ZoneID(n), nil
}

// ZoneKey 区域描述表的复合键，四个字段全部相等才算命中
type ZoneKey struct {
	PlantProject  string
	Zone          ZoneID
	Acceptance    int
	CoverMaterial string
}

// Offset 机器人工具的三轴偏移
type Offset struct {
	X, Y, Z float64
}

// Parameters 机器人指令行中每个区域的九个参数，字段顺序即为线上协议顺序
type Parameters struct {
	Speed        float64
	Steam        int // 蒸汽开关 (1 开 / 0 关)
	Pressure     float64
	InputOffset  Offset
	OutputOffset Offset
}

// Values 按协议顺序返回九个参数值
func (p Parameters) Values() []any {
	return []any{
		p.Speed, p.Steam, p.Pressure,
		p.InputOffset.X, p.InputOffset.Y, p.InputOffset.Z,
		p.OutputOffset.X, p.OutputOffset.Y, p.OutputOffset.Z,
	}
}

// ZoneDescriptor 区域描述，加载后不可变
type ZoneDescriptor struct {
	SteamingTime     float64 // 单次轨迹熨烫耗时 (秒)
	TransitionPoint  string  // 该区域对应的机器人过渡点
	TrajectoryRepeat int     // 轨迹重复次数
	Parameters
}

// TransitionKey 过渡时间表的复合键
type TransitionKey struct {
	From string
	To   string
}

// Candidate 一次检测中的褶皱观测：区域 + 可接受度等级
// 等级越低越严重
type Candidate struct {
	Zone       ZoneID
	Acceptance int
}

// BuckleLocation 安全带卡扣传感器位置
type BuckleLocation string

const (
	LeftBuckle    BuckleLocation = "left_buckle"
	CentralBuckle BuckleLocation = "central_buckle"
	RightBuckle   BuckleLocation = "right_buckle"
)

// BuckleLocations 固定的三个传感器位置
var BuckleLocations = []BuckleLocation{LeftBuckle, CentralBuckle, RightBuckle}

// SensorState 传感器读数的显式变体，不能折叠成布尔值
type SensorState int

const (
	SensorAbsent  SensorState = iota // 未提供读数
	SensorPassing                    // 正常
	SensorFailed                     // KO：需要排除对应区域
	SensorUnknown                    // UNKNOWN：整座不熨烫
)

const (
	rawFailedState  = "KO"
	rawUnknownState = "UNKNOWN"
)

// ParseSensorState 将上游原始读数转换为传感器状态
func ParseSensorState(raw string) SensorState {
	switch strings.TrimSpace(raw) {
	case "":
		return SensorAbsent
	case rawUnknownState:
		return SensorUnknown
	case rawFailedState:
		return SensorFailed
	default:
		return SensorPassing
	}
}

func (s SensorState) String() string {
	switch s {
	case SensorPassing:
		return "PASSING"
	case SensorFailed:
		return "FAILED"
	case SensorUnknown:
		return "UNKNOWN"
	default:
		return "ABSENT"
	}
}

// BuckleDecision 上游安全带检测结果
type BuckleDecision struct {
	Left    string `json:"left_buckle,omitempty"`
	Central string `json:"central_buckle,omitempty"`
	Right   string `json:"right_buckle,omitempty"`
}

// Readings 返回三个位置的传感器状态
func (b BuckleDecision) Readings() map[BuckleLocation]SensorState {
	return map[BuckleLocation]SensorState{
		LeftBuckle:    ParseSensorState(b.Left),
		CentralBuckle: ParseSensorState(b.Central),
		RightBuckle:   ParseSensorState(b.Right),
	}
}

// LooseBool 兼容 JSON 布尔值与 "true"/"false" 字符串
type LooseBool bool

func (b *LooseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = LooseBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		parsed = false
	}
	*b = LooseBool(parsed)
	return nil
}

// ProgramNumber 座椅程序号。上游可能给出字符串或数字，输出时保持原来的 JSON 类型
type ProgramNumber struct {
	Text    string
	Numeric bool
}

// ProgramNumberOf 以字符串形式构造程序号
func ProgramNumberOf(text string) ProgramNumber {
	return ProgramNumber{Text: text}
}

func (p *ProgramNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ProgramNumber{}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*p = ProgramNumber{Text: str}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = ProgramNumber{Text: n.String(), Numeric: true}
	return nil
}

func (p ProgramNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value())
}

// Value 数字程序号返回 json.Number，否则返回字符串
func (p ProgramNumber) Value() any {
	if p.Numeric {
		return json.Number(p.Text)
	}
	return p.Text
}

func (p ProgramNumber) String() string { return p.Text }

// Int 转换为整数。数字形式的整值浮点 (99.0) 视为整数，字符串必须是整数字面量
func (p ProgramNumber) Int() (int, error) {
	text := strings.TrimSpace(p.Text)
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	if !p.Numeric {
		return 0, fmt.Errorf("program number %q is not an integer", p.Text)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("program number %q is not an integer", p.Text)
	}
	return int(f), nil
}

// SeatInfo 座椅元数据
type SeatInfo struct {
	ProgramNumber ProgramNumber `json:"program_number"`
	PlantProject  string        `json:"plant_project"`
	CoverMaterial string        `json:"cover_material"`
}

// Recognised 对应上游 "seat_info 为空" 的判断
func (s *SeatInfo) Recognised() bool {
	return s != nil && (s.ProgramNumber.Text != "" || s.PlantProject != "" || s.CoverMaterial != "")
}

// StationInfo 工站信息，仅用于归档路径
type StationInfo struct {
	Country       string `json:"country"`
	Plant         string `json:"plant"`
	LineID        string `json:"line_id"`
	StationFullID string `json:"station_full_id"`
}

// Metadata 入站事件的元数据部分
type Metadata struct {
	SerialNumber string       `json:"serial_number"`
	TriggerTime  string       `json:"trigger_time,omitempty"`
	PipelineID   string       `json:"pipeline_id,omitempty"`
	SeatInfo     *SeatInfo    `json:"seat_info,omitempty"`
	StationInfo  *StationInfo `json:"station_info,omitempty"`
}

// WrinkleDetection 褶皱检测模型输出
type WrinkleDetection struct {
	Succeed                    LooseBool              `json:"succeed"`
	PredictedAcceptancePerZone map[string]json.Number `json:"predicted_acceptance_per_zone"`
}

// InboundEvent 决策所需的入站事件最小结构
type InboundEvent struct {
	Metadata Metadata `json:"metadata"`
	Models   struct {
		WrinkleDetector WrinkleDetection `json:"wrinkle_detector"`
	} `json:"models"`
	Decisions EventDecisions `json:"decisions"`
}

// EventDecisions 上游节点已经写入的决策。不是 JSON 对象时视为没有任何决策
type EventDecisions struct {
	FrontBuckleBelt *BuckleDecision `json:"front_buckle_belt_domain_decision,omitempty"`
}

func (d *EventDecisions) UnmarshalJSON(data []byte) error {
	*d = EventDecisions{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields["front_buckle_belt_domain_decision"]
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var buckle BuckleDecision
	if err := json.Unmarshal(raw, &buckle); err != nil {
		return err
	}
	d.FrontBuckleBelt = &buckle
	return nil
}

// TimingRecord 每个被选中区域的耗时记录，用于观测
type TimingRecord struct {
	InputZone        ZoneID  `json:"input_zone"`
	Acceptance       int     `json:"acceptance_threshold"`
	TransitionPoints string  `json:"transition_points"`
	TransitionTime   float64 `json:"transition_time"`
	SteamingTime     float64 `json:"steaming_time"`
}

// CommandRowWidth 指令行固定宽度：两个标识字段 + 九个参数
const CommandRowWidth = 11

// CommandRow 机器人指令行。首行为表头 (程序号, 序列号, 九个空字段)
type CommandRow struct {
	Header        bool
	ProgramNumber ProgramNumber
	SerialNumber  string
	Position      int
	Zone          ZoneID
	Params        Parameters
}

// HeaderRow 构造表头行
func HeaderRow(programNumber ProgramNumber, serialNumber string) CommandRow {
	return CommandRow{Header: true, ProgramNumber: programNumber, SerialNumber: serialNumber}
}

// Values 按协议顺序返回行内所有字段，表头的空字段为 nil
func (r CommandRow) Values() []any {
	values := make([]any, 0, CommandRowWidth)
	if r.Header {
		values = append(values, r.ProgramNumber.Value(), r.SerialNumber)
		for len(values) < CommandRowWidth {
			values = append(values, nil)
		}
		return values
	}
	values = append(values, r.Position, int(r.Zone))
	return append(values, r.Params.Values()...)
}

// MarshalJSON 以扁平数组形式输出
func (r CommandRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values())
}

// DecisionRecord 单个座椅的决策记录，交给传输层后不再修改
type DecisionRecord struct {
	State                  string         `json:"state,omitempty"`
	Steaming               bool           `json:"steaming"`
	PlantProject           string         `json:"plant_project,omitempty"`
	SteamingSequenceRecord []TimingRecord `json:"steaming_sequence_record"`
	CommandRows            []CommandRow   `json:"abb_format_zones"`
	TheoreticalWorkingTime float64        `json:"theoretical_working_time"`
	CycleTime              float64        `json:"cycle_time"`
	UploadFTP              bool           `json:"upload_ftp"`
}
