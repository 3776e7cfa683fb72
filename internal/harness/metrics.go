package harness

import (
	"encoding/json"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/sakura-internet/go-rison/v4"
	"github.com/stretchr/testify/require"

	"bi-demo/internal/domain"
	"bi-demo/internal/testutil"
)

// AssertMetric checks that spy saw exactly one call, bucketed by status and
// attributed to funcName.
func AssertMetric(t require.TestingT, spy *testutil.StatsSpy, status int, funcName string) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	calls := spy.Calls()
	require.Len(t, calls, 1, "expected exactly one stats call, got %v", calls)
	require.Equal(t, testutil.StatsCall{Bucket: domain.MetricBucketForStatus(status), FuncName: funcName}, calls[0])
}

// PostAssertMetric posts data as JSON with client and asserts the stats call
// it caused.
func PostAssertMetric(t require.TestingT, client *resty.Client, spy *testutil.StatsSpy, uri string, data any, funcName string) *resty.Response {
	spy.Reset()
	resp, err := client.R().SetHeader("Content-Type", "application/json").SetBody(data).Post(uri)
	require.NoError(t, err)
	AssertMetric(t, spy, resp.StatusCode(), funcName)
	return resp
}

// GetAssertMetric issues a GET and asserts the stats call it caused.
func (h *Harness) GetAssertMetric(uri, funcName string) *resty.Response {
	h.t.Helper()
	h.Stats.Reset()
	resp, err := h.Client.R().Get(uri)
	h.req.NoError(err)
	AssertMetric(h.t, h.Stats, resp.StatusCode(), funcName)
	return resp
}

// PostAssertMetric posts data as JSON and asserts the stats call it caused.
func (h *Harness) PostAssertMetric(uri string, data any, funcName string) *resty.Response {
	h.t.Helper()
	return PostAssertMetric(h.t, h.Client, h.Stats, uri, data, funcName)
}

// PutAssertMetric puts data as JSON and asserts the stats call it caused.
func (h *Harness) PutAssertMetric(uri string, data any, funcName string) *resty.Response {
	h.t.Helper()
	h.Stats.Reset()
	resp, err := h.Client.R().SetHeader("Content-Type", "application/json").SetBody(data).Put(uri)
	h.req.NoError(err)
	AssertMetric(h.t, h.Stats, resp.StatusCode(), funcName)
	return resp
}

// DeleteAssertMetric issues a DELETE and asserts the stats call it caused.
func (h *Harness) DeleteAssertMetric(uri, funcName string) *resty.Response {
	h.t.Helper()
	h.Stats.Reset()
	resp, err := h.Client.R().Delete(uri)
	h.req.NoError(err)
	AssertMetric(h.t, h.Stats, resp.StatusCode(), funcName)
	return resp
}

// GetList logs in as username (admin when empty) and lists assetType with
// filter encoded as the rison q argument.
func (h *Harness) GetList(assetType string, filter map[string]any, username string) *resty.Response {
	h.t.Helper()
	if username == "" {
		username = AdminUsername
	}
	h.Login(username)
	q, err := Rison(filter)
	h.req.NoError(err)
	return h.GetAssertMetric("/api/v1/"+assetType+"/?q="+url.QueryEscape(q), "get_list")
}

// Rison encodes v in the compact notation list endpoints accept as q. Nil,
// untyped or a nil map, encodes as the empty object.
func Rison(v any) (string, error) {
	if m, ok := v.(map[string]any); v == nil || (ok && m == nil) {
		v = map[string]any{}
	}
	j, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	r, err := rison.FromJSON(j, rison.Rison)
	if err != nil {
		return "", err
	}
	return string(r), nil
}
