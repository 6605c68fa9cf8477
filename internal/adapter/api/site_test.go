package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/site-outages-etl/internal/domain"
)

const (
	testSite     = "norwich-pear-tree"
	siteInfoBody = `{
		"id": "norwich-pear-tree",
		"name": "Norwich Pear Tree",
		"devices": [
			{"id": "111183e7-fb90-436b-9951-63392b36bdd2", "name": "Battery 1"},
			{"id": "86b5c819-6a6c-4978-8c51-a2d810bb9318", "name": "Battery 2"}
		]
	}`
)

func siteServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/site-info/"+testSite, r.URL.Path)
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SiteInfo_ReturnsBodyUnchanged(t *testing.T) {
	srv := siteServer(t, siteInfoBody)

	info, err := testClient(srv.URL).SiteInfo(context.Background(), testSite)
	require.NoError(t, err)

	var want map[string]any
	require.NoError(t, json.Unmarshal([]byte(siteInfoBody), &want))
	assert.Equal(t, want, info)
}

func TestClient_SiteDevices(t *testing.T) {
	srv := siteServer(t, siteInfoBody)

	index, err := testClient(srv.URL).SiteDevices(context.Background(), testSite)
	require.NoError(t, err)

	assert.Equal(t, domain.DeviceIndex{
		"111183e7-fb90-436b-9951-63392b36bdd2": {ID: "111183e7-fb90-436b-9951-63392b36bdd2", Name: "Battery 1"},
		"86b5c819-6a6c-4978-8c51-a2d810bb9318": {ID: "86b5c819-6a6c-4978-8c51-a2d810bb9318", Name: "Battery 2"},
	}, index)
}

func TestClient_SiteDevices_Idempotent(t *testing.T) {
	srv := siteServer(t, siteInfoBody)
	c := testClient(srv.URL)

	first, err := c.SiteDevices(context.Background(), testSite)
	require.NoError(t, err)
	second, err := c.SiteDevices(context.Background(), testSite)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestClient_SiteDevices_DuplicateIDsKeepLast(t *testing.T) {
	srv := siteServer(t, `{"id":"norwich-pear-tree","devices":[
		{"id":"d1","name":"Battery 1"},
		{"id":"d1","name":"Battery 1b"}
	]}`)

	index, err := testClient(srv.URL).SiteDevices(context.Background(), testSite)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "Battery 1b", index["d1"].Name)
}

func TestClient_SiteDevices_EmptyRoster(t *testing.T) {
	srv := siteServer(t, `{"id":"norwich-pear-tree","devices":[]}`)

	index, err := testClient(srv.URL).SiteDevices(context.Background(), testSite)
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestClient_SiteDevices_MissingDevices(t *testing.T) {
	srv := siteServer(t, `{"id":"norwich-pear-tree","name":"Norwich Pear Tree"}`)

	_, err := testClient(srv.URL).SiteDevices(context.Background(), testSite)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingDevices)
	assert.Contains(t, err.Error(), testSite)
}

func TestClient_SiteDevices_UnknownSite(t *testing.T) {
	srv, calls := scriptedServer(t, `{"message":"Site not found"}`, http.StatusNotFound)

	_, err := testClient(srv.URL).SiteDevices(context.Background(), "atlantis")
	assert.ErrorIs(t, err, ErrAPI)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSiteRoutes_EscapeSiteName(t *testing.T) {
	assert.Equal(t, "/site-info/norwich-pear-tree", siteInfoRoute("norwich-pear-tree"))
	assert.Equal(t, "/site-outages/kings%20lynn", siteOutagesRoute("kings lynn"))
	assert.Equal(t, "/site-outages/a%2Fb", siteOutagesRoute("a/b"))
}

func decodeEnriched(t *testing.T, data string) []domain.EnrichedOutage {
	t.Helper()
	var out []domain.EnrichedOutage
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	return out
}

func TestClient_UploadSiteOutages(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/site-outages/"+testSite, r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get(headerAPIKey))
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outages := decodeEnriched(t, `[
		{"id":"111183e7-fb90-436b-9951-63392b36bdd2","begin":"2022-02-23T11:33:34.046Z","end":"2022-06-12T01:42:58.052Z","name":"Battery 1"}
	]`)

	ok, err := testClient(srv.URL).UploadSiteOutages(context.Background(), testSite, outages)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[
		{"id":"111183e7-fb90-436b-9951-63392b36bdd2","begin":"2022-02-23T11:33:34.046Z","end":"2022-06-12T01:42:58.052Z","name":"Battery 1"}
	]`, string(got))
}

func TestClient_UploadSiteOutages_EmptyIsArray(t *testing.T) {
	for name, outages := range map[string][]domain.EnrichedOutage{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			var got []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			ok, err := testClient(srv.URL).UploadSiteOutages(context.Background(), testSite, outages)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `[]`, string(got))
		})
	}
}

func TestClient_UploadSiteOutages_BuiltInCode(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outages := []domain.EnrichedOutage{{
		Outage: domain.Outage{ID: "a", Begin: time.Date(2022, 3, 1, 8, 0, 0, 0, time.UTC)},
		Name:   "Battery 1",
	}}

	_, err := testClient(srv.URL).UploadSiteOutages(context.Background(), testSite, outages)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","begin":"2022-03-01T08:00:00Z","name":"Battery 1"}]`, string(got))
}

func TestClient_UploadSiteOutages_Rejected(t *testing.T) {
	srv, calls := scriptedServer(t, `{"message":"Bad request"}`, http.StatusBadRequest)

	ok, err := testClient(srv.URL).UploadSiteOutages(context.Background(), testSite, nil)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Equal(t, int32(1), calls.Load())
}
