// Package rules compiles CEL filter expressions over rate records.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// ErrInvalidExpression is returned for expressions that do not compile
// or do not evaluate to bool.
var ErrInvalidExpression = errors.New("invalid filter expression")

// Predicate reports whether a record matches a compiled expression.
type Predicate func(domain.RateRecord) bool

// Engine compiles filter expressions and keeps compiled programs by source.
type Engine struct {
	mu        sync.RWMutex
	env       *cel.Env
	compiled  map[string]cel.Program
	maxCached int
}

// NewEngine creates a filter engine. maxCached bounds the program cache.
func NewEngine(maxCached int) (*Engine, error) {
	if maxCached <= 0 {
		maxCached = 256
	}

	env, err := cel.NewEnv(
		cel.Variable("bank", cel.StringType),
		cel.Variable("tenure_description", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("min_days", cel.IntType),
		cel.Variable("max_days", cel.IntType),
		cel.Variable("regular_rate", cel.DoubleType),
		cel.Variable("senior_rate", cel.DoubleType),
		cel.Variable("has_senior_rate", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:       env,
		compiled:  make(map[string]cel.Program),
		maxCached: maxCached,
	}, nil
}

// Validate compiles expr without caching it.
func (e *Engine) Validate(expr string) error {
	_, err := e.compile(expr)
	return err
}

// Compile returns a predicate for expr. Records whose evaluation fails
// do not match.
func (e *Engine) Compile(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)

	e.mu.RLock()
	program, ok := e.compiled[expr]
	e.mu.RUnlock()

	if !ok {
		var err error
		program, err = e.compile(expr)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		if len(e.compiled) >= e.maxCached {
			e.compiled = make(map[string]cel.Program)
		}
		e.compiled[expr] = program
		e.mu.Unlock()
	}

	return func(rec domain.RateRecord) bool {
		out, _, err := program.Eval(activation(rec))
		if err != nil {
			return false
		}
		matched, ok := out.(types.Bool)
		return ok && bool(matched)
	}, nil
}

// Count returns the number of cached programs.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Close drops all cached programs.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]cel.Program)
	return nil
}

func (e *Engine) compile(expr string) (cel.Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpression, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return program, nil
}

// activation binds a record to the CEL variables. Absent rates read as 0.0.
func activation(rec domain.RateRecord) map[string]any {
	regular, _ := rec.RegularRate.Float()
	senior, hasSenior := rec.SeniorRate.Float()
	return map[string]any{
		"bank":               rec.Bank,
		"tenure_description": rec.TenureDescription,
		"category":           string(rec.Category),
		"region":             rec.Region,
		"currency":           rec.Currency,
		"min_days":           int64(rec.MinDays),
		"max_days":           int64(rec.MaxDays),
		"regular_rate":       regular,
		"senior_rate":        senior,
		"has_senior_rate":    hasSenior,
	}
}
