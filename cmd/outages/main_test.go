package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/site-outages-etl/internal/adapter/api"
	"github.com/couchcryptid/site-outages-etl/internal/mockapi"
)

const testAPIKey = "test-api-key"

// withMockAPI points the job at a local mock and returns the mock.
func withMockAPI(t *testing.T, failFirst int) *mockapi.Server {
	t.Helper()
	mock, err := mockapi.NewServer(":0", mockapi.Config{APIKey: testAPIKey, FailFirst: failFirst},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)

	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("API_KEY", testAPIKey)
	t.Setenv("API_RETRY_BACKOFF_FACTOR", "0")
	t.Setenv("LOG_LEVEL", "error")
	return mock
}

func TestExitCode(t *testing.T) {
	apiErr := &api.APIError{Method: "GET", Route: "/outages", StatusCode: 500, Attempts: 3, Err: errors.New("boom")}

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitAPIError, exitCode(apiErr))
	assert.Equal(t, exitAPIError, exitCode(fmt.Errorf("fetch outages: %w", apiErr)))
	assert.Equal(t, exitAPIError, exitCode(fmt.Errorf("%w: bad timeout", errConfig)))
	assert.Equal(t, exitOtherError, exitCode(errors.New("decode outages: unexpected EOF")))
}

func TestExecute_UploadsDefaultSite(t *testing.T) {
	mock := withMockAPI(t, 0)

	code := execute(context.Background(), nil, io.Discard)
	require.Equal(t, exitOK, code)
	assert.Len(t, mock.Uploads("norwich-pear-tree"), 3)
}

func TestExecute_SiteNameFlag(t *testing.T) {
	mock := withMockAPI(t, 0)

	code := execute(context.Background(), []string{"--site-name", "kingfisher"}, io.Discard)
	require.Equal(t, exitOK, code)

	uploads := mock.Uploads("kingfisher")
	require.Len(t, uploads, 1)
	assert.Equal(t, "04ccad00-eb8d-4045-8994-b569cb4b64c1", uploads[0]["id"])
	assert.Empty(t, mock.Uploads("norwich-pear-tree"))
}

func TestExecute_SinceFlag(t *testing.T) {
	mock := withMockAPI(t, 0)

	code := execute(context.Background(), []string{"--since", "2022-07-01T00:00:00Z"}, io.Discard)
	require.Equal(t, exitOK, code)
	assert.Len(t, mock.Uploads("norwich-pear-tree"), 2)
}

func TestExecute_RecoversFromTransientFailures(t *testing.T) {
	mock := withMockAPI(t, 2)

	code := execute(context.Background(), nil, io.Discard)
	require.Equal(t, exitOK, code)
	assert.Len(t, mock.Uploads("norwich-pear-tree"), 3)
}

func TestExecute_APIErrorExitsOne(t *testing.T) {
	mock := withMockAPI(t, 10)

	code := execute(context.Background(), nil, io.Discard)
	assert.Equal(t, exitAPIError, code)
	assert.Empty(t, mock.Uploads("norwich-pear-tree"))
}

func TestExecute_UnknownSiteExitsOne(t *testing.T) {
	withMockAPI(t, 0)

	code := execute(context.Background(), []string{"--site-name", "atlantis"}, io.Discard)
	assert.Equal(t, exitAPIError, code)
}

func TestExecute_WrongKeyExitsOne(t *testing.T) {
	withMockAPI(t, 0)
	t.Setenv("API_KEY", "wrong")

	code := execute(context.Background(), nil, io.Discard)
	assert.Equal(t, exitAPIError, code)
}

func TestExecute_InvalidSinceExitsOne(t *testing.T) {
	withMockAPI(t, 0)

	code := execute(context.Background(), []string{"--since", "last tuesday"}, io.Discard)
	assert.Equal(t, exitAPIError, code)
}

func TestExecute_InvalidConfigExitsOne(t *testing.T) {
	t.Setenv("API_TIMEOUT", "soon")

	code := execute(context.Background(), nil, io.Discard)
	assert.Equal(t, exitAPIError, code)
}

func TestExecute_UnknownFlagExitsTwo(t *testing.T) {
	code := execute(context.Background(), []string{"--no-such-flag"}, io.Discard)
	assert.Equal(t, exitOtherError, code)
}

func TestExecute_Version(t *testing.T) {
	var out bytes.Buffer
	code := execute(context.Background(), []string{"--version"}, &out)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "outages version dev")
}

func TestSiteInfo_JSON(t *testing.T) {
	withMockAPI(t, 0)

	var out bytes.Buffer
	code := execute(context.Background(), []string{"site-info"}, &out)
	require.Equal(t, exitOK, code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "norwich-pear-tree", info["id"])
	assert.Len(t, info["devices"], 2)
}

func TestSiteInfo_YAML(t *testing.T) {
	withMockAPI(t, 0)

	var out bytes.Buffer
	code := execute(context.Background(), []string{"site-info", "--site-name", "kingfisher", "-o", "yaml"}, &out)
	require.Equal(t, exitOK, code)

	var info map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "KingFisher", info["name"])
}

func TestSiteInfo_BadOutput(t *testing.T) {
	withMockAPI(t, 0)

	code := execute(context.Background(), []string{"site-info", "-o", "xml"}, io.Discard)
	assert.Equal(t, exitAPIError, code)
}
