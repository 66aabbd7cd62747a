package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitlistCmd_AddAndList(t *testing.T) {
	// Given: an empty waitlist
	isolate(t)

	// When: adding the same address twice with different case
	out, err := run(t, "waitlist", "add", "Ada@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Added ada@example.com")

	out, err = run(t, "waitlist", "add", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "already registered")

	// Then: it is listed once
	out, err = run(t, "waitlist", "list", "--json")
	require.NoError(t, err)
	var resp struct {
		Count   int `json:"count"`
		Entries []struct {
			Email string `json:"email"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "ada@example.com", resp.Entries[0].Email)
}

func TestWaitlistCmd_InvalidEmail(t *testing.T) {
	isolate(t)

	_, err := run(t, "waitlist", "add", "not-an-email")

	assert.Error(t, err)
}

func TestWaitlistCmd_EmptyList(t *testing.T) {
	isolate(t)

	out, err := run(t, "waitlist", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "empty")
}
