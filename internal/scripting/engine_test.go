package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeScript(t *testing.T, dir, sub, name, content string) {
	t.Helper()
	full := filepath.Join(dir, sub)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", full, err)
	}
	if err := os.WriteFile(filepath.Join(full, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s/%s: %v", sub, name, err)
	}
}

func TestCalcWageFallsBackWithoutScript(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	got := e.CalcWage(WageContext{BaseWage: 30, ShiftsWorked: 5, HourOfDay: 14})
	if got != 30 {
		t.Fatalf("expected fallback to base wage 30, got %d", got)
	}
}

func TestCalcWageAppliesMultiplier(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "economy", "wage.lua", `
function wage_multiplier(ctx)
  if ctx.hour_of_day >= 22 or ctx.hour_of_day < 6 then
    return 1.5
  end
  return 1.0
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if got := e.CalcWage(WageContext{BaseWage: 40, HourOfDay: 23}); got != 60 {
		t.Fatalf("expected night-shift wage 60, got %d", got)
	}
	if got := e.CalcWage(WageContext{BaseWage: 40, HourOfDay: 12}); got != 40 {
		t.Fatalf("expected day-shift wage 40, got %d", got)
	}
}

func TestCalcUBIAmountFallsBackWithoutScript(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if got := e.CalcUBIAmount(UBIContext{BaseAmount: 20, ResidentCount: 50}); got != 20 {
		t.Fatalf("expected fallback to base amount 20, got %d", got)
	}
}

func TestCalcSentenceLengthScalesWithOffenses(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "law", "sentence.lua", `
function sentence_length(ctx)
  return ctx.base_seconds + ctx.offense_count * 600
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	got := e.CalcSentenceLength(SentenceContext{BaseSeconds: 7200, OffenseCount: 3})
	if got != 7200+1800 {
		t.Fatalf("expected 9000, got %d", got)
	}
}

func TestBuildingExtraActionsReturnsNilWithoutScript(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if got := e.BuildingExtraActions("council_hall"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestBuildingExtraActionsReadsTable(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "world", "buildings.lua", `
function building_extra_actions(kind)
  if kind == "council_hall" then
    return {"list_petitions", "write_petition"}
  end
  return {}
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	got := e.BuildingExtraActions("council_hall")
	if len(got) != 2 || got[0] != "list_petitions" || got[1] != "write_petition" {
		t.Fatalf("unexpected tags: %v", got)
	}
}

func TestNewEngineToleratesMissingScriptDirs(t *testing.T) {
	if _, err := NewEngine(filepath.Join(t.TempDir(), "does-not-exist"), zap.NewNop()); err != nil {
		t.Fatalf("expected missing script directories to be tolerated, got %v", err)
	}
}
