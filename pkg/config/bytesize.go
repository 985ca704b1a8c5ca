package config

import (
	"fmt"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
)

// ByteSize is a size in bytes that is written in configuration files in
// human-readable form ("8MiB", "512 kB", "1GB") or as a plain integer.
type ByteSize uint64

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// String renders the size using IEC units (e.g. "8.0 MiB").
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// MarshalYAML writes the size in human-readable form so that a saved config
// round-trips through ParseByteSize.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// Int64 returns the size as an int64, saturating at the maximum.
func (b ByteSize) Int64() int64 {
	if uint64(b) > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(b)
}

// byteSizeDecodeHook converts strings and numbers to ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return ParseByteSize(v)
		case int:
			if v < 0 {
				return nil, fmt.Errorf("invalid byte size %d: must not be negative", v)
			}
			return ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("invalid byte size %d: must not be negative", v)
			}
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			if v < 0 {
				return nil, fmt.Errorf("invalid byte size %v: must not be negative", v)
			}
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
