package woff2

import "fmt"

// ErrorKind discriminates the stage or cause of a decoding failure.
type ErrorKind int

// see ErrorKind
const (
	UnknownError ErrorKind = iota
	EmptyInput
	InvalidSignature
	MalformedDirectory
	TruncatedInput
	DecompressionError
	GlyfReconstructionError
	ExceedsMemory
)

func (kind ErrorKind) String() string {
	switch kind {
	case EmptyInput:
		return "empty input"
	case InvalidSignature:
		return "invalid signature"
	case MalformedDirectory:
		return "malformed directory"
	case TruncatedInput:
		return "truncated input"
	case DecompressionError:
		return "decompression error"
	case GlyfReconstructionError:
		return "glyf reconstruction error"
	case ExceedsMemory:
		return "memory limit exceeded"
	}
	return "unknown error"
}

// Error is returned for all failures of the decoder. Kind is the discriminant that callers should test against, either directly or through errors.Is with one of the Err* sentinels.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err == nil {
		return e.Kind.String()
	} else if e.Err == nil {
		return e.Msg
	} else if e.Msg == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so that errors.Is(err, ErrTruncatedInput) works irrespective of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel errors, one per ErrorKind.
var (
	ErrEmptyInput         = &Error{Kind: EmptyInput}
	ErrInvalidSignature   = &Error{Kind: InvalidSignature}
	ErrMalformedDirectory = &Error{Kind: MalformedDirectory}
	ErrTruncatedInput     = &Error{Kind: TruncatedInput}
	ErrDecompression      = &Error{Kind: DecompressionError}
	ErrGlyfReconstruction = &Error{Kind: GlyfReconstructionError}
	ErrExceedsMemory      = &Error{Kind: ExceedsMemory}
)

func errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func malformedf(format string, args ...interface{}) error {
	return errorf(MalformedDirectory, format, args...)
}

func glyff(format string, args ...interface{}) error {
	return errorf(GlyfReconstructionError, format, args...)
}

// truncated tags a truncation with the table or structure being read, eg. "glyf: truncated input".
func truncated(where string) error {
	return &Error{Kind: TruncatedInput, Msg: where + ": truncated input"}
}
