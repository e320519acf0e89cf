package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// YesNo is a boolean that travels over the wire as "Y" or "N".
type YesNo bool

// MarshalJSON encodes the flag as "Y" or "N".
func (f YesNo) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Wire())
}

// UnmarshalJSON accepts "Y"/"N" strings, JSON booleans and null. Anything
// that is not an explicit yes decodes to false.
func (f *YesNo) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = false
		return nil
	}
	switch trimmed[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("domain: decode Y/N flag: %w", err)
		}
		*f = YesNo(isYes(raw))
		return nil
	case 't', 'f':
		var raw bool
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("domain: decode Y/N flag: %w", err)
		}
		*f = YesNo(raw)
		return nil
	}
	return fmt.Errorf("domain: unsupported Y/N flag %s", string(trimmed))
}

// Wire returns the single-letter wire form.
func (f YesNo) Wire() string {
	if f {
		return "Y"
	}
	return "N"
}

// Bool unwraps the flag.
func (f YesNo) Bool() bool { return bool(f) }

// Flag returns a pointer to a YesNo, handy for optional request fields.
func Flag(v bool) *YesNo {
	f := YesNo(v)
	return &f
}

// ParseYesNo reads user input such as "yes", "n" or "Y".
func ParseYesNo(value string) (YesNo, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "y", "yes", "true":
		return true, nil
	case "n", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("domain: %q is not a yes/no value", value)
}

func isYes(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "Y", "YES", "TRUE":
		return true
	}
	return false
}
