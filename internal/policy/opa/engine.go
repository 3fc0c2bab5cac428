package opa

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/screentime/internal/policy"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

const decisionQuery = "data.screentime.enforcement.decision"

//go:embed policies/*.rego
var builtinPolicies embed.FS

// Config selects where policies are loaded from
type Config struct {
	// PolicyDir holds *.rego files. Empty means the embedded default policy.
	PolicyDir string
}

// Engine evaluates enforcement decisions with OPA rego
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewEngine creates a new OPA engine
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "opa").Logger(),
	}

	if err := e.Reload(); err != nil {
		return nil, err
	}

	source := cfg.PolicyDir
	if source == "" {
		source = "embedded"
	}
	e.logger.Info().Str("policy_source", source).Msg("OPA engine initialized")

	return e, nil
}

// loadModules returns policy sources keyed by file name
func (e *Engine) loadModules() (map[string]string, error) {
	modules := make(map[string]string)

	if e.cfg.PolicyDir == "" {
		entries, err := builtinPolicies.ReadDir("policies")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded policies: %w", err)
		}
		for _, entry := range entries {
			content, err := builtinPolicies.ReadFile("policies/" + entry.Name())
			if err != nil {
				return nil, fmt.Errorf("failed to read embedded policy %s: %w", entry.Name(), err)
			}
			modules[entry.Name()] = string(content)
		}
		return modules, nil
	}

	files, err := filepath.Glob(filepath.Join(e.cfg.PolicyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", e.cfg.PolicyDir)
	}
	sort.Strings(files)

	e.logger.Info().Int("count", len(files)).Msg("Loading policy files")

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}
		modules[file] = string(content)
	}
	return modules, nil
}

// prepare parses every module and compiles the decision query
func (e *Engine) prepare(modules map[string]string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, src := range modules {
		module, err := ast.ParseModuleWithOpts(name, src, ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("failed to parse policy file %s: %w", name, err)
		}
		e.logger.Debug().Str("file", name).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
		opts = append(opts, rego.ParsedModule(module))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare decision query: %w", err)
	}
	return query, nil
}

// Reload reloads all policies and swaps the prepared query atomically.
// On failure the previous policies stay in effect.
func (e *Engine) Reload() error {
	modules, err := e.loadModules()
	if err != nil {
		return err
	}
	query, err := e.prepare(modules)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.query = query
	e.mu.Unlock()

	e.logger.Info().Int("modules", len(modules)).Msg("OPA policies loaded")
	return nil
}

// result is the shape of data.screentime.enforcement.decision
type result struct {
	Action      policy.Action `json:"action"`
	Reason      string        `json:"reason"`
	RemainingMS int64         `json:"remaining_ms"`
}

// Decide evaluates the decision query against facts
func (e *Engine) Decide(ctx context.Context, facts policy.Facts) (policy.Decision, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(facts))
	if err != nil {
		return policy.Decision{}, fmt.Errorf("decision query evaluation failed: %w", err)
	}

	e.logger.Debug().Dur("duration", time.Since(startTime)).Str("package", facts.Package).Msg("Decision query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return policy.Decision{}, fmt.Errorf("no results from decision query")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("failed to marshal decision: %w", err)
	}

	var r result
	if err := json.Unmarshal(resultBytes, &r); err != nil {
		return policy.Decision{}, fmt.Errorf("failed to unmarshal decision: %w", err)
	}

	return policy.Decision{
		Action:    r.Action,
		Reason:    r.Reason,
		Remaining: time.Duration(r.RemainingMS) * time.Millisecond,
	}, nil
}
