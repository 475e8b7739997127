package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad flag", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "run failed", errors.New("boom"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))
}

func TestExitErrorMessage(t *testing.T) {
	err := WrapExitError(ExitFailure, "run failed", errors.New("db locked"))
	assert.Equal(t, "run failed: db locked", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "db locked")

	bare := &ExitError{Code: ExitCommandError, Message: "missing flag"}
	assert.Equal(t, "missing flag", bare.Error())
}

func TestFormatterErrorText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
	require.NoError(t, f.Error("E_RULES", "bad rules", "line 3"))

	assert.Contains(t, buf.String(), "Error [E_RULES]: bad rules")
	assert.Contains(t, buf.String(), "Details: line 3")
}
