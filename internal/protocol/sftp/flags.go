package sftp

// Open flags as sent on the wire (SSH_FXF_*).
const (
	FlagRead   uint32 = 0x01
	FlagWrite  uint32 = 0x02
	FlagAppend uint32 = 0x04
	FlagCreat  uint32 = 0x08
	FlagTrunc  uint32 = 0x10
	FlagExcl   uint32 = 0x20
)

// OpenIntent is the canonical meaning of an open request.
type OpenIntent string

const (
	IntentRead           OpenIntent = "r"
	IntentWrite          OpenIntent = "w"
	IntentWriteExclusive OpenIntent = "wx"
	IntentAppend         OpenIntent = "a"
	IntentNone           OpenIntent = ""
)

// Supported reports whether the gateway can serve this intent.
func (i OpenIntent) Supported() bool {
	switch i {
	case IntentRead, IntentWrite, IntentWriteExclusive, IntentAppend:
		return true
	}
	return false
}

// quirks maps flag values sent by specific clients to the value they mean.
// WinSCP and some FileZilla builds send WRITE|CREAT|EXCL (42) or WRITE|TRUNC
// (18) when overwriting; others send CREAT|TRUNC (24) without WRITE. A bare
// WRITE (2) is sent by clients resuming uploads.
var quirks = map[uint32]OpenIntent{
	42: IntentWrite,
	18: IntentWrite,
	24: IntentWrite,
	2:  IntentAppend,
}

// DecodeFlags applies the standard flag grammar. Combinations it does not
// name decode to IntentNone.
func DecodeFlags(raw uint32) OpenIntent {
	const (
		w  = FlagTrunc | FlagCreat | FlagWrite
		a  = FlagAppend | FlagCreat | FlagWrite
		rw = FlagRead | FlagWrite
	)

	switch raw {
	case FlagRead:
		return "r"
	case rw:
		return "r+"
	case w:
		return "w"
	case w | FlagExcl:
		return "wx"
	case w | FlagRead:
		return "w+"
	case w | FlagRead | FlagExcl:
		return "wx+"
	case a:
		return "a"
	case a | FlagExcl:
		return "ax"
	case a | FlagRead:
		return "a+"
	case a | FlagRead | FlagExcl:
		return "ax+"
	default:
		return IntentNone
	}
}

// NormalizeFlags maps raw open flags to an intent, correcting known client
// quirks first.
func NormalizeFlags(raw uint32) OpenIntent {
	if intent, ok := quirks[raw]; ok {
		return intent
	}
	return DecodeFlags(raw)
}
