package fsm

import (
	"fmt"
	"sync"
)

// State 定义决策状态类型
type State string

// Event 定义触发状态转移的事件类型
type Event string

const (
	StateReceived             State = "RECEIVED"
	StateNoSeatInfo           State = "NO_SEAT_INFO"
	StateWrinklesNotSucceeded State = "WRINKLES_NOT_SUCCEEDED"
	StateProgramBypass        State = "PROGRAM_BYPASS"
	StateUnknownBuckle        State = "UNKNOWN_BUCKLE"
	StateEvaluated            State = "EVALUATED"
	StateError                State = "ERROR"
	StateNotSteamed           State = "NOT_STEAMED"
	StateSteamed              State = "STEAMED"
	StateNotNeeded            State = "NOT_NEEDED"
	StateFailed               State = "FAILED"
)

const (
	EventSeatMissing    Event = "SEAT_MISSING"
	EventWrinklesFailed Event = "WRINKLES_FAILED"
	EventBuckleUnknown  Event = "BUCKLE_UNKNOWN"
	EventBypass         Event = "BYPASS"
	EventEvaluate       Event = "EVALUATE"
	EventSkip           Event = "SKIP"
	EventZonesSelected  Event = "ZONES_SELECTED"
	EventNothingToSteam Event = "NOTHING_TO_STEAM"
	EventError          Event = "ERROR"
	EventFail           Event = "FAIL"
)

// terminal 终态集合，到达后不再接受任何事件
var terminal = map[State]bool{
	StateNoSeatInfo:           true,
	StateWrinklesNotSucceeded: true,
	StateNotSteamed:           true,
	StateSteamed:              true,
	StateNotNeeded:            true,
	StateFailed:               true,
}

// IsTerminal 判断状态是否为终态
func IsTerminal(s State) bool {
	return terminal[s]
}

// FSM 单个入站事件的决策状态机
type FSM struct {
	mu      sync.Mutex
	current State
	history []State
	// transitions 状态转移表: CurrentState -> Event -> NextState
	transitions map[State]map[Event]State
	// callbacks 进入某状态后的回调: State -> func()
	callbacks map[State]func(targetID string)
	TargetID  string // 关联的座椅序列号
}

func NewFSM(targetID string) *FSM {
	f := &FSM{
		current:     StateReceived,
		history:     []State{StateReceived},
		TargetID:    targetID,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]func(string)),
	}
	f.initTransitions()
	return f
}

func (f *FSM) initTransitions() {
	f.addTransition(StateReceived, EventSeatMissing, StateNoSeatInfo)
	f.addTransition(StateReceived, EventWrinklesFailed, StateWrinklesNotSucceeded)
	f.addTransition(StateReceived, EventBuckleUnknown, StateUnknownBuckle)
	f.addTransition(StateReceived, EventBypass, StateProgramBypass)
	f.addTransition(StateReceived, EventEvaluate, StateEvaluated)
	f.addTransition(StateReceived, EventError, StateError) // 程序号等输入无法解析

	f.addTransition(StateProgramBypass, EventSkip, StateNotSteamed)
	f.addTransition(StateUnknownBuckle, EventSkip, StateNotSteamed)

	f.addTransition(StateEvaluated, EventZonesSelected, StateSteamed)
	f.addTransition(StateEvaluated, EventNothingToSteam, StateNotNeeded)
	f.addTransition(StateEvaluated, EventError, StateError)

	f.addTransition(StateError, EventFail, StateFailed)
}

func (f *FSM) addTransition(from State, event Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
}

// RegisterCallback 注册状态进入时的回调
func (f *FSM) RegisterCallback(state State, callback func(targetID string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[state] = callback
}

// Current 返回当前状态
func (f *FSM) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// History 返回经过的全部状态 (含初始状态)
func (f *FSM) History() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]State, len(f.history))
	copy(out, f.history)
	return out
}

// Fire 触发事件
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	nextState, ok := f.transitions[f.current][event]
	if !ok {
		current := f.current
		f.mu.Unlock()
		return fmt.Errorf("invalid transition: cannot fire event %s from state %s", event, current)
	}
	f.current = nextState
	f.history = append(f.history, nextState)
	cb := f.callbacks[nextState]
	f.mu.Unlock()

	// 回调在锁外执行，允许回调中继续 Fire
	if cb != nil {
		cb(f.TargetID)
	}
	return nil
}
