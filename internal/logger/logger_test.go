// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDisabledDiscards(t *testing.T) {
	l := New(Options{})
	require.False(t, l.Enabled(t.Context(), slog.LevelError))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Enabled: true, Output: &buf, Level: slog.LevelDebug, JSON: true})
	l.Debug("block pushed", "size", 65536)
	require.Contains(t, buf.String(), `"msg":"block pushed"`)
	require.Contains(t, buf.String(), `"size":65536`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
