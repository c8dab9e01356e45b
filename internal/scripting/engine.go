// Package scripting wraps a single gopher-lua VM that holds the
// hot-reloadable domain formulas: wage and UBI payout curves, sentence
// length, and the extra interaction tags a building kind grants beyond
// its static zone list. Single-goroutine access only (the scheduler).
package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for world-formula execution.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every .lua file from the
// economy, law, and world script directories under scriptsDir. Missing
// directories are skipped; callers fall back to static config defaults
// when a formula function isn't defined.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	for _, sub := range []string{"economy", "law", "world"} {
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// WageContext carries the inputs to the wage_multiplier formula.
type WageContext struct {
	BaseWage       int64
	ShiftsWorked   int // lifetime completed shifts for this job
	HourOfDay      int
}

// CalcWage calls Lua wage_multiplier(ctx) and returns the final wage,
// scaled by the multiplier it returns. Falls back to the unscaled base
// wage if no formula is defined.
func (e *Engine) CalcWage(ctx WageContext) int64 {
	fn := e.vm.GetGlobal("wage_multiplier")
	if fn == lua.LNil {
		return ctx.BaseWage
	}

	t := e.vm.NewTable()
	t.RawSetString("base_wage", lua.LNumber(ctx.BaseWage))
	t.RawSetString("shifts_worked", lua.LNumber(ctx.ShiftsWorked))
	t.RawSetString("hour_of_day", lua.LNumber(ctx.HourOfDay))

	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, t); err != nil {
		e.log.Error("lua wage_multiplier error", zap.Error(err))
		return ctx.BaseWage
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	mult := float64(lua.LVAsNumber(result))
	if mult <= 0 {
		return ctx.BaseWage
	}
	return int64(float64(ctx.BaseWage) * mult)
}

// UBIContext carries the inputs to the ubi_amount formula.
type UBIContext struct {
	BaseAmount      int64
	ResidentCount   int
}

// CalcUBIAmount calls Lua ubi_amount(ctx), falling back to the
// configured base amount if undefined.
func (e *Engine) CalcUBIAmount(ctx UBIContext) int64 {
	fn := e.vm.GetGlobal("ubi_amount")
	if fn == lua.LNil {
		return ctx.BaseAmount
	}

	t := e.vm.NewTable()
	t.RawSetString("base_amount", lua.LNumber(ctx.BaseAmount))
	t.RawSetString("resident_count", lua.LNumber(ctx.ResidentCount))

	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, t); err != nil {
		e.log.Error("lua ubi_amount error", zap.Error(err))
		return ctx.BaseAmount
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	amount := int64(lua.LVAsNumber(result))
	if amount <= 0 {
		return ctx.BaseAmount
	}
	return amount
}

// SentenceContext carries the inputs to the sentence_length formula.
type SentenceContext struct {
	BaseSeconds   int64
	OffenseCount  int
}

// CalcSentenceLength calls Lua sentence_length(ctx), falling back to
// the configured base sentence if undefined.
func (e *Engine) CalcSentenceLength(ctx SentenceContext) int64 {
	fn := e.vm.GetGlobal("sentence_length")
	if fn == lua.LNil {
		return ctx.BaseSeconds
	}

	t := e.vm.NewTable()
	t.RawSetString("base_seconds", lua.LNumber(ctx.BaseSeconds))
	t.RawSetString("offense_count", lua.LNumber(ctx.OffenseCount))

	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, t); err != nil {
		e.log.Error("lua sentence_length error", zap.Error(err))
		return ctx.BaseSeconds
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	seconds := int64(lua.LVAsNumber(result))
	if seconds <= 0 {
		return ctx.BaseSeconds
	}
	return seconds
}

// BuildingExtraActions calls Lua building_extra_actions(kind) to fetch
// the additional interaction tags a building kind grants beyond its
// static zone actions (e.g. a seasonal event adding a new tag to
// council_hall without a redeploy). Returns nil if undefined.
func (e *Engine) BuildingExtraActions(kind string) []string {
	fn := e.vm.GetGlobal("building_extra_actions")
	if fn == lua.LNil {
		return nil
	}

	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(kind)); err != nil {
		e.log.Error("lua building_extra_actions error", zap.Error(err), zap.String("kind", kind))
		return nil
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	tbl, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}
	var tags []string
	tbl.ForEach(func(_, v lua.LValue) {
		tags = append(tags, lua.LVAsString(v))
	})
	return tags
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
