package dispatch

import (
	"fmt"
	"sync"

	"censcope/internal/registry"
)

// Status 是任务的终态。
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Prompt 是用户给定序列中的一条指令，Index 为 1 起的原始位置。
type Prompt struct {
	Index int
	Text  string
}

// Task 是一个可调度单元：一个变体、一条指令、一个目标模型。
type Task struct {
	Variant string
	Prompt  Prompt
	Target  registry.Target
	Context string
}

// Key 唯一标识矩阵中的一个槽位。
type Key struct {
	Variant  string
	Prompt   int
	Provider string
	Model    string
}

func (t Task) Key() Key {
	return Key{Variant: t.Variant, Prompt: t.Prompt.Index, Provider: t.Target.Provider, Model: t.Target.Model}
}

// Result 是一个任务的终态结果。Text 在成功时是模型回答，失败时是
// 含模型标识的失败描述，永不为空。
type Result struct {
	Task     Task
	Status   Status
	Text     string
	Attempts int
}

// Matrix 按任务提交顺序聚合结果。完成顺序不定，槽位只写一次；
// 读取顺序始终是提交顺序，保证报告可复现。
type Matrix struct {
	mu    sync.RWMutex
	order []Key
	tasks map[Key]Task
	slots map[Key]Result
}

// NewMatrix 为给定任务序列预建空矩阵（槽位与顺序固定）。
func NewMatrix(tasks []Task) (*Matrix, error) {
	m := &Matrix{
		order: make([]Key, 0, len(tasks)),
		tasks: make(map[Key]Task, len(tasks)),
		slots: make(map[Key]Result, len(tasks)),
	}
	for _, t := range tasks {
		k := t.Key()
		if _, dup := m.tasks[k]; dup {
			return nil, fmt.Errorf("duplicate task key: %+v", k)
		}
		m.order = append(m.order, k)
		m.tasks[k] = t
	}
	return m, nil
}

// put 写入一个终态结果。槽位只写一次，重复写入或未知键是缺陷。
func (m *Matrix) put(r Result) error {
	k := r.Task.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, known := m.tasks[k]; !known {
		return fmt.Errorf("result for unknown task: %+v", k)
	}
	if _, filled := m.slots[k]; filled {
		return fmt.Errorf("slot already filled: %+v", k)
	}
	m.slots[k] = r
	return nil
}

// Get 返回指定槽位的结果。
func (m *Matrix) Get(k Key) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.slots[k]
	return r, ok
}

// Results 按提交顺序返回全部已填充结果。
func (m *Matrix) Results() []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Result, 0, len(m.order))
	for _, k := range m.order {
		if r, ok := m.slots[k]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Keys 按提交顺序返回全部槽位键。
func (m *Matrix) Keys() []Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Key(nil), m.order...)
}

// Complete 报告是否每个提交的任务都已有终态结果。
func (m *Matrix) Complete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots) == len(m.order)
}

// Size 返回提交的任务数。
func (m *Matrix) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
