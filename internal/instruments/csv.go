package instruments

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"boxscan/internal/calendar"
	"boxscan/internal/model"
)

var fallbackFullDate = regexp.MustCompile(`^(\d{2})([A-Za-z]{3})(\d{2})`)
var fallbackYearMonth = regexp.MustCompile(`^(\d{2})(\d{2})`)

// parseCSV parses the universe CSV per spec.md §4.C: ≥12 comma-separated
// fields per line, field indices fixed by the wire contract. Lines with
// fewer than 12 fields are skipped.
func parseCSV(data []byte, configuredUnderlying string, loc *time.Location) []*model.Instrument {
	var out []*model.Instrument
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 12 {
			continue
		}
		inst := parseRow(fields, configuredUnderlying, loc)
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

func parseRow(f []string, configuredUnderlying string, loc *time.Location) *model.Instrument {
	token, err := strconv.ParseUint(strings.TrimSpace(f[0]), 10, 64)
	if err != nil {
		return nil
	}

	inst := &model.Instrument{
		Token:  token,
		Symbol: strings.TrimSpace(f[2]),
		Name:   strings.TrimSpace(f[3]),
	}

	if last := strings.TrimSpace(f[4]); last != "" {
		if v, err := strconv.ParseFloat(last, 64); err == nil {
			inst.Snapshot.Last = v
		}
	}

	var expiry time.Time
	if exp := strings.TrimSpace(f[5]); exp != "" {
		if t, err := time.ParseInLocation("2006-01-02", exp, loc); err == nil {
			expiry = t
		}
	}

	var strike float64
	if s := strings.TrimSpace(f[6]); s != "" {
		strike, _ = strconv.ParseFloat(s, 64)
	}

	kindCode := strings.ToUpper(strings.TrimSpace(f[9]))
	segment := strings.ToUpper(strings.TrimSpace(f[10]))
	inst.Segment = segment
	inst.Exchange = strings.TrimSpace(f[11])

	kind := classifyKind(kindCode, segment)

	symUpper := strings.ToUpper(inst.Symbol)
	underlyingUpper := strings.ToUpper(configuredUnderlying)
	if underlyingUpper != "" && strings.HasPrefix(symUpper, underlyingUpper) {
		inst.Underlying = configuredUnderlying
	}
	if strings.Contains(symUpper, "CE") && kind != model.KindFuture {
		kind = model.KindOption
	} else if strings.Contains(symUpper, "PE") && kind != model.KindFuture {
		kind = model.KindOption
	} else if strings.Contains(symUpper, "FUT") {
		kind = model.KindFuture
	}

	switch kind {
	case model.KindOption:
		optKind := model.OptionNone
		if strings.HasSuffix(symUpper, "CE") || kindCode == "CE" {
			optKind = model.Call
		} else if strings.HasSuffix(symUpper, "PE") || kindCode == "PE" {
			optKind = model.Put
		}
		if expiry.IsZero() && inst.Underlying != "" {
			if derived, ok := fallbackExpiry(inst.Symbol, inst.Underlying, loc); ok {
				expiry = derived
			}
		}
		inst.Option = &model.OptionDetail{Strike: strike, Kind: optKind, Expiry: expiry}
	case model.KindFuture:
		inst.Future = &model.FutureDetail{Expiry: expiry}
	}
	inst.Kind = kind

	return inst
}

func classifyKind(kindCode, segment string) model.InstrumentKind {
	kind := model.KindUnknown
	switch kindCode {
	case "CE", "PE":
		kind = model.KindOption
	case "FUT":
		kind = model.KindFuture
	case "EQ", "INDICES":
		kind = model.KindEquity
		if kindCode == "INDICES" {
			kind = model.KindIndex
		}
	}
	if strings.HasSuffix(segment, "-OPT") {
		kind = model.KindOption
	} else if strings.HasSuffix(segment, "-FUT") {
		kind = model.KindFuture
	}
	return kind
}

// fallbackExpiry derives an expiry from the symbol when the CSV's expiry
// field was zero. Two forms are recognized:
//
//	<UND>YYMON3DD...   e.g. NIFTY23JUN27CE -> 2023-06-27
//	<UND>YYMM...       e.g. NIFTY2306FUT   -> last Thursday of 2023-06
func fallbackExpiry(symbol, underlying string, loc *time.Location) (time.Time, bool) {
	symUpper := strings.ToUpper(symbol)
	undUpper := strings.ToUpper(underlying)
	if !strings.HasPrefix(symUpper, undUpper) {
		return time.Time{}, false
	}
	rest := symUpper[len(undUpper):]

	if m := fallbackFullDate.FindStringSubmatch(rest); m != nil {
		year, err1 := strconv.Atoi(m[1])
		month, ok := calendar.Month3(m[2])
		day, err2 := strconv.Atoi(m[3])
		if err1 == nil && ok && err2 == nil {
			return time.Date(2000+year, month, day, 0, 0, 0, 0, loc), true
		}
	}

	if m := fallbackYearMonth.FindStringSubmatch(rest); m != nil {
		year, err1 := strconv.Atoi(m[1])
		monthNum, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && monthNum >= 1 && monthNum <= 12 {
			return calendar.LastThursdayOfMonth(2000+year, time.Month(monthNum), loc), true
		}
	}

	return time.Time{}, false
}
