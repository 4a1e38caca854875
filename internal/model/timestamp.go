package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout 是库内所有 created_at / updated_at 的统一文本格式（UTC）。
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp 以 TEXT 形式落库，兼容旧库中的 ISO-8601（带 T）写法。
type Timestamp struct {
	time.Time
}

// NewTimestamp 截断到秒并转为 UTC。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// String 返回落库格式；零值返回空串。
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.String(), nil
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("timestamp: unsupported type %T", src)
	}
}

func (t *Timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	s = strings.Replace(s, "T", " ", 1)
	if len(s) > len(TimestampLayout) {
		s = s[:len(TimestampLayout)]
	}
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (Timestamp) GormDataType() string { return "text" }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	return t.parse(s)
}
