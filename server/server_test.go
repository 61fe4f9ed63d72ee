package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrYoda/hypersparse"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	g, err := hypersparse.OpenInMemory(hypersparse.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	ts := httptest.NewServer(New(g, nil))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func seedDistance(t *testing.T, ts *httptest.Server) {
	t.Helper()
	resp, _ := do(t, ts, "POST", "/api/relations", `{"name":"distance","weight_type":"int64","incidence":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, ts, "POST", "/api/edges",
		`{"tuples":[["distance","chicago","seattle",422],["distance","seattle","portland",42]]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(2), body["inserted"])
}

func TestRelationsAndInsert(t *testing.T) {
	ts := testServer(t)
	seedDistance(t, ts)

	resp, body := do(t, ts, "GET", "/api/relations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rels := body["relations"].([]any)
	require.Len(t, rels, 1)
	rel := rels[0].(map[string]any)
	assert.Equal(t, "distance", rel["name"])
	assert.Equal(t, "Incidence", rel["kind"])
	assert.Equal(t, "INT64", rel["weight_type"])
	assert.Equal(t, float64(2), rel["len"])

	resp, _ = do(t, ts, "POST", "/api/relations", `{"name":"distance"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, ts, "POST", "/api/relations", `{"name":"x","weight_type":"decimal"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInsertErrors(t *testing.T) {
	ts := testServer(t)
	seedDistance(t, ts)

	resp, _ := do(t, ts, "POST", "/api/edges", `{"tuples":[["enemy","a","b"]]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, ts, "POST", "/api/edges", `{"tuples":[["distance","a","b","far"]]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, "POST", "/api/edges", `{"tuples":[["distance","a"]]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, "POST", "/api/edges", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuery(t *testing.T) {
	ts := testServer(t)
	seedDistance(t, ts)

	resp, body := do(t, ts, "POST", "/api/query", `{"source":"seattle"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), body["count"])
	edge := body["edges"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"seattle"}, edge["sources"])
	assert.Equal(t, []any{"portland"}, edge["destinations"])
	assert.Equal(t, []any{float64(42)}, edge["weights"])

	resp, body = do(t, ts, "POST", "/api/query", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	resp, _ = do(t, ts, "POST", "/api/query", `{"relation":"nope"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueryStream(t *testing.T) {
	ts := testServer(t)
	seedDistance(t, ts)

	resp, err := http.Post(ts.URL+"/api/query/stream", "application/json", strings.NewReader(`{"relation":"distance"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var edges []hypersparse.Edge
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var e hypersparse.Edge
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		edges = append(edges, e)
	}
	require.NoError(t, sc.Err())
	require.Len(t, edges, 2)
	assert.Equal(t, "chicago", edges[0].Source())
	assert.Equal(t, "seattle", edges[1].Source())
}

func TestProject(t *testing.T) {
	ts := testServer(t)
	resp, _ := do(t, ts, "POST", "/api/relations", `{"name":"link","weight_type":"INT64","incidence":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, ts, "POST", "/api/edges", `{"tuples":[["link","p","q",1],["link","p","q",1]]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, ts, "POST", "/api/relations/link/project", `{"combine":"plus_times"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cells := body["cells"].([]any)
	require.Len(t, cells, 1)
	cell := cells[0].(map[string]any)
	assert.Equal(t, "p", cell["source"])
	assert.Equal(t, "q", cell["destination"])
	assert.Equal(t, float64(2), cell["weight"])
	assert.Len(t, cell["edge_ids"], 2)

	resp, _ = do(t, ts, "POST", "/api/relations/link/project", `{"combine":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNodes(t *testing.T) {
	ts := testServer(t)

	resp, _ := do(t, ts, "POST", "/api/nodes", `{"name":"alice","props":{"city":"Istanbul"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, ts, "GET", "/api/nodes/alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Istanbul", body["props"].(map[string]any)["city"])

	resp, _ = do(t, ts, "PUT", "/api/nodes/alice", `{"team":"core"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = do(t, ts, "GET", "/api/nodes/alice", "")
	assert.Equal(t, map[string]any{"team": "core"}, body["props"])

	resp, _ = do(t, ts, "GET", "/api/nodes/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatsAndMetrics(t *testing.T) {
	ts := testServer(t)
	seedDistance(t, ts)

	resp, body := do(t, ts, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["size"])
	assert.Equal(t, float64(3), body["node_count"])

	resp, err := http.Get(ts.URL + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	found := false
	for sc.Scan() {
		if sc.Text() == "hypersparse_size 2" {
			found = true
		}
	}
	assert.True(t, found, "metrics should report the graph size")

	resp, body = do(t, ts, "GET", "/api/integrity", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["nodes_checked"])
}
