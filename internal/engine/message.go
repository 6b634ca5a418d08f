package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"steaming-robot/internal/types"
)

// decisionKey 决策记录在出站消息 decisions 中的键
const decisionKey = "steaming_robot"

// Message 一条入站消息：保留原文的通用结构，以及决策需要的类型化视图
type Message struct {
	Raw   map[string]interface{}
	Event types.InboundEvent
}

// DecodeMessage 解析入站消息。body 不是 JSON 对象时 Raw 为 nil
func DecodeMessage(body []byte) (Message, error) {
	var msg Message

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber() // 原样保留上游的数字
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return msg, fmt.Errorf("入站消息不是合法的 JSON 对象: %w", err)
	}
	msg.Raw = raw

	if err := json.Unmarshal(body, &msg.Event); err != nil {
		return msg, fmt.Errorf("入站消息结构不符合预期: %w", err)
	}
	return msg, nil
}

// SerialNumber 尽量取出序列号，用于日志
func (m Message) SerialNumber() string {
	if m.Event.Metadata.SerialNumber != "" {
		return m.Event.Metadata.SerialNumber
	}
	if meta, ok := m.Raw["metadata"].(map[string]interface{}); ok {
		if s, ok := meta["serial_number"].(string); ok {
			return s
		}
	}
	return ""
}

// MergeDecision 将决策记录写入 decisions.steaming_robot，其余字段原样保留。
// raw 为 nil 时生成只包含决策的新消息
func MergeDecision(raw map[string]interface{}, record types.DecisionRecord) ([]byte, error) {
	out := make(map[string]interface{}, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}

	decisions, ok := out["decisions"].(map[string]interface{})
	if !ok {
		decisions = make(map[string]interface{}, 1)
	} else {
		copied := make(map[string]interface{}, len(decisions)+1)
		for k, v := range decisions {
			copied[k] = v
		}
		decisions = copied
	}
	decisions[decisionKey] = record
	out["decisions"] = decisions

	return json.Marshal(out)
}
