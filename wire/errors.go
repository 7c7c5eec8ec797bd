package wire

import "fmt"

// ErrEndOfStream is returned when the underlying reader reports end-of-stream
// in the middle of a primitive (including mid-UTF-8 continuation bytes).
var ErrEndOfStream = fmt.Errorf("wire: unexpected end of stream while reading a multi-byte value")

// ErrSizeLimit is returned when the next logical read would exceed the
// Decoder's configured SizeLimit.
var ErrSizeLimit = fmt.Errorf("wire: size limit exceeded")

// ErrUnknownField and ErrMissingField are re-exported for the visitor layer
// driving this package; the Decoder itself never produces them (spec.md §7).
var (
	ErrUnknownField = fmt.Errorf("wire: unknown field")
	ErrMissingField = fmt.Errorf("wire: missing field")
)

// InvalidEncodingError reports bytes that do not match the expected shape:
// an invalid bool byte, an invalid option tag, or invalid UTF-8 in a char or
// string. Desc is a short, static description; Detail, when present, names
// the offending byte value or the underlying UTF-8 error.
type InvalidEncodingError struct {
	Desc   string
	Detail string
}

func (e *InvalidEncodingError) Error() string {
	if e.Detail == "" {
		return e.Desc
	}
	return fmt.Sprintf("%s (%s)", e.Desc, e.Detail)
}

// SyntaxError reports a platform-width integer that does not fit the target
// width, or a composite visitor that stopped before consuming its declared
// element count.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return "wire: syntax error: " + e.Msg }

func newInvalidEncoding(desc, detail string) error {
	return &InvalidEncodingError{Desc: desc, Detail: detail}
}

func newSyntaxError(msg string) error {
	return &SyntaxError{Msg: msg}
}
