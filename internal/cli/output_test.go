package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError_Codes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	wrapped := WrapExitError(ExitCommandError, "open failed", errors.New("no such file"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Contains(t, wrapped.Error(), "no such file")
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := new(bytes.Buffer)
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"lanes": 4}))
	assert.Contains(t, buf.String(), `"status":"ok"`)
	assert.Contains(t, buf.String(), `"lanes":4`)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := new(bytes.Buffer)
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Error("C003", "mode must be one of off, ranges, template", nil))
	assert.Equal(t, "Error [C003]: mode must be one of off, ranges, template\n", buf.String())
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out := new(bytes.Buffer)
	errW := new(bytes.Buffer)
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errW, Verbose: true}

	f.VerboseLog("checked %d channels", 4)
	assert.Empty(t, out.String(), "diagnostics must not corrupt the JSON stream")
	assert.Equal(t, "checked 4 channels\n", errW.String())
}
