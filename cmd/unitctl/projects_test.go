package main

import (
	"testing"

	"github.com/glimte/unitbus/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProjectID(t *testing.T) {
	id, err := parseProjectID("1004")
	require.NoError(t, err)
	assert.Equal(t, api.ProjectID(1004), id)

	_, err = parseProjectID("first")
	assert.Error(t, err)
}

func TestParseFeatures(t *testing.T) {
	features, err := parseFeatures([]string{`metadata={"doi":"10.1/x"}`, "dmp=[]"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"doi":"10.1/x"}`, string(features["metadata"]))
	assert.JSONEq(t, `[]`, string(features["dmp"]))

	_, err = parseFeatures([]string{"metadata"})
	assert.Error(t, err)

	_, err = parseFeatures([]string{"metadata={"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long...", truncate("a long title", 9))
}
