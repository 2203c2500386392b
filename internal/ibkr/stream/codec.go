package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tickscope/pkg/ibkr"
)

// Decode classifies one inbound frame. It never panics and holds no state.
func Decode(raw []byte) DecodeResult {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Unparsable{Err: ErrEmptyFrame}
	}

	switch trimmed[0] {
	case '{':
		var rec RawRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return Unparsable{Err: fmt.Errorf("decode object: %w", err)}
		}
		if token, ok := controlToken(rec); ok {
			return ControlToken{Token: token}
		}
		return DataBatch{Records: []RawRecord{rec}}

	case '[':
		// Every element must be an object, otherwise the frame is dropped whole.
		var recs []RawRecord
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return Unparsable{Err: fmt.Errorf("decode array: %w", err)}
		}
		return DataBatch{Records: recs}

	default:
		return Unparsable{Err: ErrNotObjectOrArray}
	}
}

// controlToken matches {"topic": "system", "success": "<token>"}.
func controlToken(rec RawRecord) (string, bool) {
	var topic, token string
	if raw, ok := rec[ibkr.FieldTopic]; !ok || json.Unmarshal(raw, &topic) != nil || topic != ibkr.TopicSystem {
		return "", false
	}
	if raw, ok := rec[ibkr.FieldSuccess]; !ok || json.Unmarshal(raw, &token) != nil || token == "" {
		return "", false
	}
	return token, true
}
