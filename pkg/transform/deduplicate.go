package transform

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/models"
	"github.com/zeebo/xxh3"
)

// Deduplicate drops records whose key was already seen during the run. The
// first occurrence of each key wins. Keys are tracked as 128-bit xxh3 hashes
// of the key tuple.
type Deduplicate struct {
	keys []string
	seen map[xxh3.Uint128]struct{}
	buf  []byte
}

// NewDeduplicate creates a deduplicate step over the given key fields.
func NewDeduplicate(keys []string) (*Deduplicate, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("deduplicate requires at least one key field")
	}
	return &Deduplicate{
		keys: append([]string(nil), keys...),
		seen: make(map[xxh3.Uint128]struct{}),
	}, nil
}

func (d *Deduplicate) Name() string { return "deduplicate" }

func (d *Deduplicate) Apply(rec models.Record) (models.Record, Outcome, error) {
	d.buf = appendKey(d.buf[:0], rec, d.keys)
	h := xxh3.Hash128(d.buf)
	if _, dup := d.seen[h]; dup {
		return rec, Drop, nil
	}
	d.seen[h] = struct{}{}
	return rec, Keep, nil
}

// Reset forgets every seen key.
func (d *Deduplicate) Reset() {
	d.seen = make(map[xxh3.Uint128]struct{})
}

// Seen returns the number of distinct keys observed.
func (d *Deduplicate) Seen() int { return len(d.seen) }

// appendKey encodes the key tuple with a type tag per value so that 1 and "1"
// stay distinct while 1 and 1.0 collide. Strings are length-prefixed and
// values are separated by 0x1f.
func appendKey(buf []byte, rec models.Record, keys []string) []byte {
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, 0x1f)
		}
		switch v := rec.Value(k).(type) {
		case nil:
			buf = append(buf, 0x00)
		case bool:
			buf = append(buf, 'b')
			buf = strconv.AppendBool(buf, v)
		case int:
			buf = append(buf, 'n')
			buf = strconv.AppendInt(buf, int64(v), 10)
		case int64:
			buf = append(buf, 'n')
			buf = strconv.AppendInt(buf, v, 10)
		case float64:
			buf = append(buf, 'n')
			if v == math.Trunc(v) && math.Abs(v) < 1<<63 {
				buf = strconv.AppendInt(buf, int64(v), 10)
			} else {
				buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
			}
		case string:
			buf = append(buf, 's')
			buf = strconv.AppendInt(buf, int64(len(v)), 10)
			buf = append(buf, ':')
			buf = append(buf, v...)
		case time.Time:
			buf = append(buf, 't')
			buf = v.UTC().AppendFormat(buf, time.RFC3339Nano)
		default:
			buf = append(buf, 'x')
			buf = fmt.Append(buf, v)
		}
	}
	return buf
}
