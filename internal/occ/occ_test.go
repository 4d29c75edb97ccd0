package occ

import (
	"testing"

	"github.com/contactkeval/optionscan/internal/chain"
)

func TestGenerateCompactForm(t *testing.T) {
	sym, err := Generate("QQQ", "2025-01-17", 520, chain.Call, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sym != "QQQ250117C00520000" {
		t.Fatalf("expected QQQ250117C00520000, got %s", sym)
	}
}

func TestGeneratePaddedForm(t *testing.T) {
	sym, err := Generate("QQQ", "2025-01-17", 520, chain.Call, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sym != "QQQ   250117C00520000" {
		t.Fatalf("expected padded form, got %q", sym)
	}
}

func TestParseCompactAndPaddedAgree(t *testing.T) {
	compact, err := Parse("QQQ250117C00520000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	padded, err := Parse("QQQ   250117C00520000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []Parsed{compact, padded} {
		if p.Root != "QQQ" || p.Strike != 520 || p.OptionType != chain.Call {
			t.Fatalf("unexpected parse result: %+v", p)
		}
	}
	if compact.ExpirationYYMMDD != padded.ExpirationYYMMDD {
		t.Fatalf("expected matching expiration segments")
	}
	if compact.ExpirationISO() != "2025-01-17" {
		t.Fatalf("expected ISO round-trip, got %s", compact.ExpirationISO())
	}
}

func TestParsePutAndFractionalStrike(t *testing.T) {
	sym, _ := Generate("SPY", "2024-12-20", 452.5, chain.Put, false)
	p, err := Parse(sym)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OptionType != chain.Put || p.Strike != 452.5 {
		t.Fatalf("unexpected parse result: %+v", p)
	}
}

func TestParseRejectsMalformedSymbol(t *testing.T) {
	if _, err := Parse("NOTANOCCSYMBOL"); err == nil {
		t.Fatalf("expected error for malformed symbol")
	}
}

func TestGenerateStrikeGridDefaultCenter(t *testing.T) {
	rows, err := GenerateStrikeGrid("SPY", "2025-03-21", 101.3, 5, 2, 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 10 { // (2+2+1 strikes) * 2 types
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	seen := map[float64]int{}
	for _, r := range rows {
		seen[r.Strike]++
	}
	if seen[100] != 2 {
		t.Fatalf("expected center strike 100 to appear twice (call+put), got %d", seen[100])
	}
}

func TestGenerateStrikeGridCustomCenterExpression(t *testing.T) {
	rows, err := GenerateStrikeGrid("SPY", "2025-03-21", 100, 5, 0, 0, "{SPOT} - {INCREMENT}*0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for a single strike, got %d", len(rows))
	}
	// center = 100 - 2.5 = 97.5, floored to the increment of 5 -> 97.5/5=19.5 -> floor=19 -> 95
	if rows[0].Strike != 95 {
		t.Fatalf("expected floored center strike 95, got %f", rows[0].Strike)
	}
}
