package decision

import (
	"fmt"
	"log/slog"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// BypassSeat 规则表达式中 seat 变量的字段
type BypassSeat struct {
	ProgramNumber string
	PlantProject  string
	CoverMaterial string
}

type bypassRule struct {
	source  string
	program *vm.Program
}

// BypassRules 配置的免熨烫规则，命中任一规则即跳过该座椅
type BypassRules struct {
	rules  []bypassRule
	logger *slog.Logger
}

func bypassEnv(seat BypassSeat, serial string) map[string]interface{} {
	return map[string]interface{}{"seat": seat, "serial": serial}
}

// NewBypassRules 编译规则表达式。无法编译或结果不是布尔值的规则记录错误后忽略
func NewBypassRules(sources []string, logger *slog.Logger) *BypassRules {
	b := &BypassRules{logger: logger.With("component", "bypass")}
	env := bypassEnv(BypassSeat{}, "")
	for _, src := range sources {
		if src == "" {
			continue
		}
		program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
		if err != nil {
			b.logger.Error("免熨烫规则编译失败，已忽略", "rule", src, "error", err)
			continue
		}
		b.rules = append(b.rules, bypassRule{source: src, program: program})
	}
	return b
}

// Len 有效规则数量
func (b *BypassRules) Len() int {
	if b == nil {
		return 0
	}
	return len(b.rules)
}

// Match 返回第一条结果为 true 的规则
func (b *BypassRules) Match(seat BypassSeat, serial string) (string, bool) {
	if b == nil {
		return "", false
	}
	env := bypassEnv(seat, serial)
	for _, r := range b.rules {
		hit, err := evaluate(r.program, env)
		if err != nil {
			b.logger.Error("免熨烫规则执行失败", "rule", r.source, "error", err)
			continue
		}
		if hit {
			return r.source, true
		}
	}
	return "", false
}

func evaluate(program *vm.Program, env map[string]interface{}) (bool, error) {
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("rule execution failed: %w", err)
	}
	hit, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule result is not a boolean")
	}
	return hit, nil
}
