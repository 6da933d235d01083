package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexText is a text attribute that tolerates upstream type drift. JSON
// strings decode verbatim; numbers and booleans decode to their literal text.
type FlexText string

func (t *FlexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = FlexText(s)
		return nil
	}
	// Integral floats such as 1.0 are rendered without the fraction.
	if f, err := strconv.ParseFloat(string(b), 64); err == nil && math.Abs(f) < 1e15 && f == math.Trunc(f) {
		*t = FlexText(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*t = FlexText(b)
	return nil
}

// Value returns the text or nil when t is nil.
func (t *FlexText) Value() any {
	if t == nil {
		return nil
	}
	return string(*t)
}

// FlexFloat is a numeric attribute that also accepts numeric strings,
// including a decimal comma ("52,52").
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("decode number %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}
