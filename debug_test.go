package teeio

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureDiagnostics(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	prev := DiagnosticOutput
	DiagnosticOutput = func() io.Writer { return &out }
	t.Cleanup(func() { DiagnosticOutput = prev })
	return &out
}

func TestDebugReader(t *testing.T) {
	diag := captureDiagnostics(t)

	got, err := io.ReadAll(DebugReader(strings.NewReader(helloText)))
	require.NoError(t, err)

	assert.Equal(t, helloText, string(got))
	assert.Equal(t, helloText, diag.String())
}

func TestDebugWriter(t *testing.T) {
	diag := captureDiagnostics(t)

	var out bytes.Buffer
	w := DebugWriter(&out)
	_, err := w.Printf("status=%d\n", 200)
	require.NoError(t, err)

	assert.Equal(t, "status=200\n", out.String())
	assert.Equal(t, "status=200\n", diag.String())
}
