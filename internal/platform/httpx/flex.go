package httpx

import (
	"bytes"
	"encoding/json"
)

// FlexString accepts a JSON string, number, or null and keeps its text, so
// form-style parallel arrays can be validated line by line instead of
// failing the whole body.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

// At returns the i-th element, or "" when the slice is shorter.
func At(values []FlexString, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return string(values[i])
}

// MaxLen returns the length of the longest slice.
func MaxLen(slices ...[]FlexString) int {
	n := 0
	for _, s := range slices {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}
