// Package jsontime provides time types with stable wire and storage forms.
//
// Milli renders as epoch milliseconds in JSON, RFC 3339 in YAML, and keeps
// full precision in msgpack. Duration reads "15s" style strings from JSON and
// YAML configuration.
package jsontime

import (
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ json.Marshaler        = Milli{}
	_ json.Unmarshaler      = (*Milli)(nil)
	_ msgpack.CustomEncoder = Milli{}
	_ msgpack.CustomDecoder = (*Milli)(nil)
)

// Milli is an instant that travels as Unix milliseconds in JSON. Messages
// sort by the full nanosecond value, which msgpack preserves.
type Milli time.Time

func (m Milli) Time() time.Time { return time.Time(m) }
func (m Milli) IsZero() bool    { return m.Time().IsZero() }
func (m Milli) UnixNano() int64 { return m.Time().UnixNano() }

func (m Milli) Equal(o Milli) bool { return m.Time().Equal(o.Time()) }
func (m Milli) After(o Milli) bool { return m.Time().After(o.Time()) }

func (m Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Time().UnixMilli())
}

func (m *Milli) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*m = Milli(time.UnixMilli(ms))
	return nil
}

// MarshalYAML renders the instant as RFC 3339 for CLI output.
func (m Milli) MarshalYAML() (any, error) {
	return m.Time().UTC().Format(time.RFC3339Nano), nil
}

func (m Milli) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeTime(m.Time())
}

func (m *Milli) DecodeMsgpack(dec *msgpack.Decoder) error {
	t, err := dec.DecodeTime()
	*m = Milli(t)
	return err
}
