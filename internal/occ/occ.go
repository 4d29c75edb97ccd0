// Package occ parses and generates OCC-format option symbols
// (ROOT+YYMMDD+{C|P}+STRIKE·1000) and builds strike grids around a spot
// price. The optional custom strike-centering expression substitutes
// named placeholders with their numeric values as literal text, then
// hands the resulting string to govaluate.
package occ

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/contactkeval/optionscan/internal/chain"
)

// ParseError is returned by Parse on a malformed symbol. The numeric core
// never throws; this boundary parser is the one place that returns a
// categorized error.
type ParseError struct {
	Symbol string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("occ: cannot parse %q: %s", e.Symbol, e.Reason)
}

// Parsed is the decoded form of an OCC symbol.
type Parsed struct {
	Root             string
	ExpirationYYMMDD string
	OptionType       chain.OptionType
	Strike           float64
}

var suffixPattern = regexp.MustCompile(`[CP]\d{8}$`)
var yymmddPattern = regexp.MustCompile(`^\d{6}$`)

// Generate builds an OCC symbol. expirationISO must be "YYYY-MM-DD". When
// padded is true, root is right-padded with spaces to 6 characters;
// otherwise it is left compact.
func Generate(root, expirationISO string, strike float64, optType chain.OptionType, padded bool) (string, error) {
	yymmdd, err := isoToYYMMDD(expirationISO)
	if err != nil {
		return "", err
	}

	root = strings.ToUpper(strings.TrimSpace(root))
	if padded {
		if len(root) > 6 {
			return "", &ParseError{Symbol: root, Reason: "root exceeds 6 characters for padded form"}
		}
		root = root + strings.Repeat(" ", 6-len(root))
	}

	typeChar := "C"
	if optType == chain.Put {
		typeChar = "P"
	}

	strikeInt := int64(chain.Round(strike*1000, 0))
	strikeDigits := fmt.Sprintf("%08d", strikeInt)

	return root + yymmdd + typeChar + strikeDigits, nil
}

// Parse decodes an OCC symbol in either padded or compact form.
func Parse(symbol string) (Parsed, error) {
	loc := suffixPattern.FindStringIndex(symbol)
	if loc == nil {
		return Parsed{}, &ParseError{Symbol: symbol, Reason: "missing [CP] + 8-digit strike suffix"}
	}

	suffix := symbol[loc[0]:]
	prefix := symbol[:loc[0]]
	if len(prefix) < 6 {
		return Parsed{}, &ParseError{Symbol: symbol, Reason: "prefix shorter than a YYMMDD date"}
	}

	yymmdd := prefix[len(prefix)-6:]
	root := prefix[:len(prefix)-6]
	if !yymmddPattern.MatchString(yymmdd) {
		return Parsed{}, &ParseError{Symbol: symbol, Reason: "expiration segment is not 6 digits"}
	}

	root = strings.ToUpper(strings.TrimRight(root, " "))
	if root == "" {
		return Parsed{}, &ParseError{Symbol: symbol, Reason: "empty root"}
	}

	optType := chain.Call
	if suffix[0] == 'P' {
		optType = chain.Put
	}

	strikeInt, err := strconv.ParseInt(suffix[1:], 10, 64)
	if err != nil {
		return Parsed{}, &ParseError{Symbol: symbol, Reason: "strike segment is not numeric"}
	}

	return Parsed{
		Root:             root,
		ExpirationYYMMDD: yymmdd,
		OptionType:       optType,
		Strike:           float64(strikeInt) / 1000,
	}, nil
}

// ExpirationISO converts a parsed YYMMDD expiration to YYYY-MM-DD,
// assuming a 21st-century year for YY < 70.
func (p Parsed) ExpirationISO() string {
	iso, _ := yymmddToISO(p.ExpirationYYMMDD)
	return iso
}

func isoToYYMMDD(iso string) (string, error) {
	parts := strings.Split(iso, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return "", &ParseError{Symbol: iso, Reason: "expiration must be YYYY-MM-DD"}
	}
	return parts[0][2:] + parts[1] + parts[2], nil
}

func yymmddToISO(yymmdd string) (string, error) {
	if !yymmddPattern.MatchString(yymmdd) {
		return "", &ParseError{Symbol: yymmdd, Reason: "expected 6 digits"}
	}
	yy, _ := strconv.Atoi(yymmdd[0:2])
	century := "20"
	if yy >= 70 {
		century = "19"
	}
	return century + yymmdd[0:2] + "-" + yymmdd[2:4] + "-" + yymmdd[4:6], nil
}

// GridRow is one generated strike/type pair with its OCC symbol.
type GridRow struct {
	Strike     float64
	OptionType chain.OptionType
	OCCSymbol  string
}

// GenerateStrikeGrid centers a strike ladder on floor(spot/increment)*increment
// (or on a custom govaluate expression, if provided, floored to the
// increment the same way) and emits the center strike, strikesBelow
// strikes below it, and strikesAbove above it, with a call and a put row
// per strike.
//
// customCenterExpr may reference {SPOT} and {INCREMENT}, e.g.
// "{SPOT} - {INCREMENT}*0.5". An empty expression uses the default center.
func GenerateStrikeGrid(root, expirationISO string, spot, increment float64, strikesBelow, strikesAbove int, customCenterExpr string) ([]GridRow, error) {
	if increment <= 0 {
		return nil, &ParseError{Symbol: root, Reason: "increment must be positive"}
	}

	center, err := resolveCenter(spot, increment, customCenterExpr)
	if err != nil {
		return nil, err
	}
	center = math.Floor(center/increment) * increment

	var strikes []float64
	for i := strikesBelow; i >= 0; i-- {
		strikes = append(strikes, center-float64(i)*increment)
	}
	for i := 1; i <= strikesAbove; i++ {
		strikes = append(strikes, center+float64(i)*increment)
	}

	rows := make([]GridRow, 0, len(strikes)*2)
	for _, k := range strikes {
		for _, ot := range []chain.OptionType{chain.Call, chain.Put} {
			symbol, err := Generate(root, expirationISO, k, ot, false)
			if err != nil {
				return nil, err
			}
			rows = append(rows, GridRow{Strike: k, OptionType: ot, OCCSymbol: symbol})
		}
	}
	return rows, nil
}

func resolveCenter(spot, increment float64, expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return spot, nil
	}

	rendered := strings.NewReplacer(
		"{SPOT}", strconv.FormatFloat(spot, 'f', -1, 64),
		"{INCREMENT}", strconv.FormatFloat(increment, 'f', -1, 64),
	).Replace(expr)

	evalExpr, err := govaluate.NewEvaluableExpression(rendered)
	if err != nil {
		return 0, &ParseError{Symbol: expr, Reason: "invalid center expression: " + err.Error()}
	}
	result, err := evalExpr.Evaluate(nil)
	if err != nil {
		return 0, &ParseError{Symbol: expr, Reason: "center expression evaluation failed: " + err.Error()}
	}
	f, ok := result.(float64)
	if !ok {
		return 0, &ParseError{Symbol: expr, Reason: "center expression did not evaluate to a number"}
	}
	return f, nil
}
