package sftp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		name      string
		raw       uint32
		want      OpenIntent
		supported bool
	}{
		// Client quirks
		{"Quirk42", 42, IntentWrite, true},
		{"Quirk18", 18, IntentWrite, true},
		{"Quirk24", 24, IntentWrite, true},
		{"Quirk2", 2, IntentAppend, true},

		// Standard grammar
		{"Read", FlagRead, IntentRead, true},
		{"Write", FlagTrunc | FlagCreat | FlagWrite, IntentWrite, true},
		{"WriteExclusive", FlagTrunc | FlagCreat | FlagWrite | FlagExcl, IntentWriteExclusive, true},
		{"Append", FlagAppend | FlagCreat | FlagWrite, IntentAppend, true},
		{"ReadWrite", FlagRead | FlagWrite, "r+", false},
		{"WritePlus", FlagTrunc | FlagCreat | FlagRead | FlagWrite, "w+", false},
		{"WriteExclusivePlus", FlagTrunc | FlagCreat | FlagRead | FlagWrite | FlagExcl, "wx+", false},
		{"AppendPlus", FlagAppend | FlagCreat | FlagRead | FlagWrite, "a+", false},
		{"AppendExclusive", FlagAppend | FlagCreat | FlagWrite | FlagExcl, "ax", false},
		{"AppendExclusivePlus", FlagAppend | FlagCreat | FlagRead | FlagWrite | FlagExcl, "ax+", false},

		// Undecodable
		{"Zero", 0, IntentNone, false},
		{"ExclOnly", FlagExcl, IntentNone, false},
		{"CreatWrite", FlagCreat | FlagWrite, IntentNone, false},
		{"ReadExcl", FlagRead | FlagExcl, IntentNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeFlags(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.supported, got.Supported())
		})
	}
}

func TestDecodeFlagsIgnoresQuirks(t *testing.T) {
	// 42 is WRITE|CREAT|EXCL without TRUNC, which the grammar does not name.
	assert.Equal(t, IntentNone, DecodeFlags(42))
	assert.Equal(t, IntentNone, DecodeFlags(2))
}

func TestNormalizeFlagsExhaustive(t *testing.T) {
	// Every 6-bit combination decodes to a known string or IntentNone, and
	// only the four supported intents report Supported.
	known := map[OpenIntent]bool{
		"r": true, "r+": true, "w": true, "wx": true, "w+": true, "wx+": true,
		"a": true, "ax": true, "a+": true, "ax+": true, "": true,
	}
	for raw := uint32(0); raw < 64; raw++ {
		t.Run(fmt.Sprintf("%#x", raw), func(t *testing.T) {
			intent := NormalizeFlags(raw)
			assert.True(t, known[intent], "unexpected intent %q", intent)
			switch intent {
			case IntentRead, IntentWrite, IntentWriteExclusive, IntentAppend:
				assert.True(t, intent.Supported())
			default:
				assert.False(t, intent.Supported())
			}
		})
	}
}
