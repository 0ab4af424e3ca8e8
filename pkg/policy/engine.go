// Package policy evaluates the forwarding-header policy through an embedded
// OPA instance. Spoofable routing headers are never rejected outright by the
// validators; this policy decides whether their presence is logged, ignored,
// or escalated to a block.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

// Action is the policy outcome for one flagged header.
type Action string

const (
	// ActionLog records the header through the observability sink (default).
	ActionLog Action = "log"
	// ActionIgnore suppresses the flag entirely.
	ActionIgnore Action = "ignore"
	// ActionBlock escalates the flag to a request rejection.
	ActionBlock Action = "block"
)

// Decision carries the policy outcome and an optional reason for the audit log.
type Decision struct {
	Action Action
	Reason string
}

// Input describes one flagged forwarding header.
type Input struct {
	Header string
	Method string
	Path   string
}

const defaultEntrypoint = "warden/headers/decision"

// DefaultModule is the builtin policy: log every flagged forwarding header.
const DefaultModule = `package warden.headers

import rego.v1

default decision := {"action": "log", "reason": "spoofable routing header present"}
`

// EngineOptions control engine construction.
type EngineOptions struct {
	// Entrypoint is the decision path (default "warden/headers/decision").
	Entrypoint string
	// Modules maps module names to Rego source. Empty selects DefaultModule.
	Modules map[string]string
}

// Engine evaluates header policy decisions using a prepared Rego query.
type Engine struct {
	entrypoint string
	prepared   rego.PreparedEvalQuery
	mu         sync.RWMutex
}

// NewEngine parses and compiles the configured Rego modules and warms the
// entrypoint query so syntax errors surface at startup rather than on the
// request path.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	modules := opts.Modules
	if len(modules) == 0 {
		modules = map[string]string{"builtin.rego": DefaultModule}
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	regoOpts := make([]func(*rego.Rego), 0, len(modules)+1)
	regoOpts = append(regoOpts, rego.Query("data."+strings.ReplaceAll(entry, "/", ".")))
	for _, name := range names {
		module, err := ast.ParseModuleWithOpts(name, modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("policy: parse rego module %q: %w", name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile rego modules: %w", err)
	}

	return &Engine{entrypoint: entry, prepared: prepared}, nil
}

// Evaluate runs the policy for one flagged header. An empty or missing
// decision defaults to log; malformed decisions are errors so callers can
// fail closed.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	payload := map[string]any{
		"header": input.Header,
		"method": input.Method,
		"path":   input.Path,
	}

	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	results, err := prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("policy: header decision: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Action: ActionLog}, nil
	}

	value, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("policy: unexpected decision type %T", results[0].Expressions[0].Value)
	}

	action, err := parseAction(value["action"])
	if err != nil {
		return Decision{}, err
	}
	reason, _ := value["reason"].(string)

	return Decision{Action: action, Reason: reason}, nil
}

func parseAction(value any) (Action, error) {
	if value == nil {
		return ActionLog, nil
	}
	text, ok := value.(string)
	if !ok {
		return Action(""), fmt.Errorf("policy: action must be a string, got %T", value)
	}
	switch Action(strings.ToLower(text)) {
	case ActionLog:
		return ActionLog, nil
	case ActionIgnore:
		return ActionIgnore, nil
	case ActionBlock:
		return ActionBlock, nil
	case Action(""):
		return ActionLog, nil
	default:
		return Action(""), errors.New("policy: unknown action " + text)
	}
}
