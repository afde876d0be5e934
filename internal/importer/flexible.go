package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	// Try number
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// shellNumber matches a Mongo shell number wrapper left inside a string,
// e.g. "NumberInt(2001)".
var shellNumber = regexp.MustCompile(`^Number(?:Int|Long)\(\s*"?(-?[0-9]+)"?\s*\)$`)

// ParseYear interprets a raw year value.
//
// Integral JSON numbers and numeric strings yield a year. A missing, null or
// empty value yields nil with ok=true. Anything else (non-numeric text,
// fractional numbers, booleans, arrays, objects) yields nil with ok=false:
// the year is dropped, the record is kept.
func ParseYear(raw json.RawMessage) (year *int, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		return parseYearString(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, false
		}
		return parseYearNumber(n)
	default:
		return nil, false
	}
}

func parseYearString(s string) (*int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	if m := shellNumber.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return parseYearNumber(json.Number(s))
}

func parseYearNumber(n json.Number) (*int, bool) {
	if i, err := strconv.Atoi(n.String()); err == nil {
		return &i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, false
	}
	i := int(f)
	return &i, true
}
