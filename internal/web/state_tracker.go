package web

import (
	"sync"
	"time"

	"steaming-robot/internal/types"
)

// DefaultHistory 保留的最近决策条数
const DefaultHistory = 50

// DecisionView 用于 UI 展示的单条决策
type DecisionView struct {
	SerialNumber           string         `json:"serial_number"`
	TraceID                string         `json:"trace_id,omitempty"`
	Outcome                string         `json:"outcome"`
	Steaming               bool           `json:"steaming"`
	PlantProject           string         `json:"plant_project,omitempty"`
	Zones                  []types.ZoneID `json:"zones"`
	TheoreticalWorkingTime float64        `json:"theoretical_working_time"`
	UploadFTP              bool           `json:"upload_ftp"`
	Error                  string         `json:"error,omitempty"`
	DurationMs             float64        `json:"duration_ms"`
	At                     time.Time      `json:"at"`
}

// GlobalState 服务的实时状态快照
type GlobalState struct {
	Received  int            `json:"received"`
	Processed int            `json:"processed"`
	Outcomes  map[string]int `json:"outcomes"`
	Recent    []DecisionView `json:"recent"` // 最新的在前
}

// StateTracker 追踪最近的决策，并通知前端更新
type StateTracker struct {
	mu      sync.RWMutex
	state   GlobalState
	history int
	hub     *Hub // 可以为 nil
}

// NewStateTracker 创建一个新的 StateTracker 实例。history <= 0 时使用 DefaultHistory
func NewStateTracker(hub *Hub, history int) *StateTracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &StateTracker{
		state:   GlobalState{Outcomes: make(map[string]int), Recent: []DecisionView{}},
		history: history,
		hub:     hub,
	}
}

// EventReceived 记录一个入站事件
func (st *StateTracker) EventReceived() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Received++
}

// AddDecision 记录一条决策，并向所有客户端广播
func (st *StateTracker) AddDecision(v DecisionView) {
	st.mu.Lock()
	st.state.Processed++
	st.state.Outcomes[v.Outcome]++
	recent := make([]DecisionView, 0, st.history)
	recent = append(recent, v)
	for _, old := range st.state.Recent {
		if len(recent) == st.history {
			break
		}
		recent = append(recent, old)
	}
	st.state.Recent = recent
	st.mu.Unlock()

	if st.hub != nil {
		st.hub.Broadcast(v)
	}
}

// GetStateSnapshot 返回当前状态的深拷贝副本
func (st *StateTracker) GetStateSnapshot() GlobalState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	snapshot := GlobalState{
		Received:  st.state.Received,
		Processed: st.state.Processed,
		Outcomes:  make(map[string]int, len(st.state.Outcomes)),
		Recent:    make([]DecisionView, len(st.state.Recent)),
	}
	for k, v := range st.state.Outcomes {
		snapshot.Outcomes[k] = v
	}
	copy(snapshot.Recent, st.state.Recent)
	return snapshot
}
