package parsetypes

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//Timestamp holds a zeek time value. The zero value means the field was
//not present in the log.
type Timestamp struct {
	time.Time
}

//ParseEpoch converts zeek's "seconds.fraction" representation of a time
//without going through a float so sub-microsecond digits survive
func ParseEpoch(text string) (time.Time, error) {
	if strings.ContainsAny(text, "eE") {
		flt, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(flt) || math.IsInf(flt, 0) {
			return time.Time{}, errors.Errorf("invalid epoch timestamp %q", text)
		}
		whole, frac := math.Modf(flt)
		return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), nil
	}

	secText, fracText := text, ""
	if idx := strings.IndexByte(text, '.'); idx != -1 {
		secText, fracText = text[:idx], text[idx+1:]
	}

	secs, err := strconv.ParseInt(secText, 10, 64)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid epoch timestamp %q", text)
	}

	var nanos int64
	if fracText != "" {
		if len(fracText) > 9 {
			fracText = fracText[:9]
		}
		fracText += strings.Repeat("0", 9-len(fracText))
		nanos, err = strconv.ParseInt(fracText, 10, 64)
		if err != nil || nanos < 0 {
			return time.Time{}, errors.Errorf("invalid epoch timestamp %q", text)
		}
	}
	if strings.HasPrefix(secText, "-") {
		nanos = -nanos
	}
	return time.Unix(secs, nanos).UTC(), nil
}

//UnmarshalJSON accepts epoch seconds as a number and ISO 8601 strings,
//the two encodings zeek's JSON writer supports
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		parsed, err := ParseEpoch(text)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	parsed, err := ParseEpoch(string(b))
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

//TTLVector holds the TTLs of a dns answer section as written in the log.
//Unset entries are kept as the unset marker "-".
type TTLVector []string

//UnmarshalJSON accepts TTLs encoded as numbers, strings, or null
func (v *TTLVector) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = nil
		return nil
	}

	var raw []jsoniter.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	ttls := make(TTLVector, len(raw))
	for i, entry := range raw {
		entry = bytes.TrimSpace(entry)
		switch {
		case bytes.Equal(entry, []byte("null")):
			ttls[i] = "-"
		case len(entry) > 0 && entry[0] == '"':
			var text string
			if err := json.Unmarshal(entry, &text); err != nil {
				return err
			}
			ttls[i] = text
		default:
			ttls[i] = string(entry)
		}
	}
	*v = ttls
	return nil
}
