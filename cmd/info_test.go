package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_StaysOffTheSocketWithoutLive(t *testing.T) {
	testConfig(t)
	ln := testListener(t)

	require.NoError(t, infoCmd.Flags().Set("socket", ln.Path()))
	t.Cleanup(func() { _ = infoCmd.Flags().Set("socket", "") })

	require.NoError(t, infoCmd.RunE(infoCmd, nil))

	_, err := ln.Accept(100 * time.Millisecond)
	assert.Error(t, err, "info connected to the renderer")
}

func TestInfo_LiveQueriesRenderer(t *testing.T) {
	testConfig(t)
	ln := testListener(t)

	require.NoError(t, infoCmd.Flags().Set("socket", ln.Path()))
	require.NoError(t, infoCmd.Flags().Set("live", "true"))
	t.Cleanup(func() {
		_ = infoCmd.Flags().Set("socket", "")
		_ = infoCmd.Flags().Set("live", "false")
	})

	// Nobody answers, so the query reports the renderer as unavailable
	// but the connection itself reaches the listener.
	require.NoError(t, infoCmd.RunE(infoCmd, nil))

	conn, err := ln.Accept(100 * time.Millisecond)
	require.NoError(t, err)
	conn.Close()
}
