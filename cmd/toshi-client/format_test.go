package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"format", "fa", "2"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "2.50\n", out.String())

	cmd = newRootCmd()
	cmd.SetArgs([]string{"format", "fa", "-1"})
	assert.Error(t, cmd.Execute())
}
