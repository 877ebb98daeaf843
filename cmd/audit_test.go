package cmd

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"grimm.is/rnsgate/internal/audit"
)

func sampleEvents() []audit.Event {
	return []audit.Event{{
		ID:        7,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Caller:    "opnsense",
		Action:    "service",
		Command:   "reticulum restart",
		Outcome:   audit.OutcomeOK,
		Duration:  1500 * time.Millisecond,
	}}
}

func TestPrintEvents_Table(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printEvents(&out, sampleEvents(), "table"))
	assert.Contains(t, out.String(), "CALLER")
	assert.Contains(t, out.String(), "reticulum restart")
	assert.Contains(t, out.String(), "1.5s")
}

func TestPrintEvents_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printEvents(&out, sampleEvents(), "json"))

	var got []audit.Event
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "opnsense", got[0].Caller)
}

func TestPrintEvents_YAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printEvents(&out, sampleEvents(), "yaml"))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "reticulum restart", got[0]["command"])
	assert.Equal(t, "ok", got[0]["outcome"])
}

func TestPrintEvents_UnknownFormat(t *testing.T) {
	assert.Error(t, printEvents(&bytes.Buffer{}, nil, "xml"))
}
