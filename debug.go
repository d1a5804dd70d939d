package teeio

import (
	"io"
	"os"
)

// DiagnosticOutput supplies the mirror used by DebugReader and DebugWriter.
var DiagnosticOutput = func() io.Writer { return os.Stderr }

// DebugReader mirrors everything read from r to DiagnosticOutput.
func DebugReader(r io.Reader) *Reader {
	return NewReader(r, DiagnosticOutput())
}

// DebugWriter mirrors everything written to w to DiagnosticOutput.
func DebugWriter(w io.Writer) *Writer {
	return NewWriter(w, DiagnosticOutput())
}
