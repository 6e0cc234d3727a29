package codec

import (
	"encoding/json"
	"time"

	"github.com/jobhost/bindings/bindingdata"
)

// Time is a timestamp encoded in UTC using the RFC 3339
// round-trip format.  A timestamp read without a zone is UTC.
type Time struct {
	time.Time
}

// At wraps t as a Time.
func At(t time.Time) Time {
	return Time{t}
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := bindingdata.ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
