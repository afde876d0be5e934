package importer

import (
	"encoding/json"
	"testing"
)

func TestFlexibleString_String(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"string id", `"53e99784b7602d9701f3e133"`, "53e99784b7602d9701f3e133"},
		{"number id", `1024`, "1024"},
		{"null value", `null`, ""},
		{"float number", `2026.0`, "2026.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexibleString
			if err := json.Unmarshal([]byte(tt.input), &f); err != nil {
				t.Fatalf("UnmarshalJSON() error = %v", err)
			}
			if got := f.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlexibleString_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"array", `[1,2,3]`},
		{"object", `{"key": "value"}`},
		{"bool", `true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexibleString
			if err := json.Unmarshal([]byte(tt.input), &f); err == nil {
				t.Errorf("UnmarshalJSON() expected error for input %s", tt.input)
			}
		})
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantNil bool
		wantOK  bool
	}{
		{"number", `2001`, 2001, false, true},
		{"integral float", `2001.0`, 2001, false, true},
		{"exponent", `2e3`, 2000, false, true},
		{"numeric string", `"1999"`, 1999, false, true},
		{"padded string", `" 1999 "`, 1999, false, true},
		{"shell wrapper in string", `"NumberInt(2010)"`, 2010, false, true},
		{"absent", ``, 0, true, true},
		{"null", `null`, 0, true, true},
		{"empty string", `""`, 0, true, true},
		{"non-numeric text", `"circa 1990"`, 0, true, false},
		{"fractional", `2001.5`, 0, true, false},
		{"bool", `true`, 0, true, false},
		{"object", `{"y":2001}`, 0, true, false},
		{"infinity text", `"Infinity"`, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseYear(json.RawMessage(tt.input))
			if ok != tt.wantOK {
				t.Errorf("ParseYear(%s) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseYear(%s) = %d, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("ParseYear(%s) = %v, want %d", tt.input, got, tt.want)
			}
		})
	}
}
