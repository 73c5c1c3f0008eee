package actuals

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// payloadField reads one provider payload key. Parse reports false when the value is absent
// or unusable, so the next field in the table is tried.
type payloadField struct {
	key   string
	parse func(json.RawMessage) (float64, bool)
}

// Provider-supplied training load, in priority order.
var trainingLoadFields = []payloadField{
	{key: "tss", parse: nonNegative},
	{key: "suffer_score", parse: nonNegative},
	{key: "relative_effort", parse: nonNegative},
	{key: "training_load", parse: nonNegative},
}

// Power values, in preference order.
var powerFields = []payloadField{
	{key: "average_watts", parse: positive},
	{key: "normalized_power", parse: positive},
	{key: "weighted_average_watts", parse: positive},
}

var heartRateFields = []payloadField{
	{key: "average_heartrate", parse: positive},
}

// payload is a decoded activity raw payload. A malformed payload behaves as an empty one.
type payload map[string]json.RawMessage

func decodePayload(raw json.RawMessage) payload {
	if len(raw) == 0 {
		return nil
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return p
}

// first returns the value and key of the first field in fields that parses.
func (p payload) first(fields []payloadField) (float64, string, bool) {
	for _, field := range fields {
		raw, ok := p[field.key]
		if !ok {
			continue
		}
		if v, ok := field.parse(raw); ok {
			return v, field.key, true
		}
	}
	return 0, "", false
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return v, err == nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func nonNegative(raw json.RawMessage) (float64, bool) {
	v, ok := number(raw)
	return v, ok && v >= 0
}

func positive(raw json.RawMessage) (float64, bool) {
	v, ok := number(raw)
	return v, ok && v > 0
}
