package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	entryEvent    = "EVENT"
	entryComplete = "COMPLETE"
)

// LogEntry 代表 WAL 文件中的一条日志记录
type LogEntry struct {
	Type    string          `json:"type"`              // "EVENT" (收到事件) 或 "COMPLETE" (决策已发布)
	EventID string          `json:"event_id"`          // 事件 ID
	Body    json.RawMessage `json:"body,omitempty"`    // 入站事件原文，仅 EVENT
	Invalid bool            `json:"invalid,omitempty"` // Body 不是合法 JSON，按字符串保存
}

// PendingEvent 已记录但尚未完成的入站事件
type PendingEvent struct {
	ID   string
	Body []byte
}

// WAL (Write-Ahead Log) 记录处理中的入站事件，重启后重放未完成的事件
type WAL struct {
	file *os.File
	mu   sync.Mutex
}

// NewWAL 创建或打开一个 WAL 文件
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{file: file}, nil
}

// Append 在决策前记录一个入站事件
func (w *WAL) Append(id string, body []byte) error {
	entry, err := eventEntry(id, body)
	if err != nil {
		return err
	}
	return w.write(entry)
}

func eventEntry(id string, body []byte) (LogEntry, error) {
	entry := LogEntry{Type: entryEvent, EventID: id}
	if json.Valid(body) {
		entry.Body = body
		return entry, nil
	}
	raw, err := json.Marshal(string(body))
	if err != nil {
		return LogEntry{}, err
	}
	entry.Body = raw
	entry.Invalid = true
	return entry, nil
}

// Complete 在决策发布后标记事件完成
func (w *WAL) Complete(id string) error {
	return w.write(LogEntry{Type: entryComplete, EventID: id})
}

func (w *WAL) write(entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return err
	}
	// 确保数据被刷新到磁盘，防止数据丢失
	return w.file.Sync()
}

// Recover 按原始顺序返回未完成的事件，在系统启动时调用
func (w *WAL) Recover() ([]PendingEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var order []string
	pending := make(map[string]PendingEvent)

	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// 忽略损坏的行 (例如写入过程中断电)
			continue
		}

		switch entry.Type {
		case entryEvent:
			if _, seen := pending[entry.EventID]; !seen {
				order = append(order, entry.EventID)
			}
			pending[entry.EventID] = PendingEvent{ID: entry.EventID, Body: entry.body()}
		case entryComplete:
			delete(pending, entry.EventID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取 WAL 失败: %w", err)
	}

	var recovered []PendingEvent
	for _, id := range order {
		if p, ok := pending[id]; ok {
			recovered = append(recovered, p)
			delete(pending, id)
		}
	}

	// 恢复文件指针到末尾，以便后续追加写入
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}
	if err := w.terminateLastLine(); err != nil {
		return nil, err
	}
	return recovered, nil
}

// terminateLastLine 末尾是断电留下的半行时补一个换行，避免后续记录与之粘连
func (w *WAL) terminateLastLine() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := w.file.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = w.file.Write([]byte{'\n'})
	return err
}

func (e LogEntry) body() []byte {
	if e.Invalid {
		var str string
		if json.Unmarshal(e.Body, &str) == nil {
			return []byte(str)
		}
	}
	return e.Body
}

// Compact 重写文件，只保留未完成的事件
func (w *WAL) Compact() error {
	pending, err := w.Recover()
	if err != nil {
		return err
	}

	var buf []byte
	for _, p := range pending {
		entry, err := eventEntry(p.ID, p.Body)
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(append(buf, data...), '\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close 关闭 WAL 文件
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
