package harness

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
)

// RequestOptions shape a GetResp call. With Form set the request is a form
// POST, with JSON set a JSON POST, otherwise a GET.
type RequestOptions struct {
	Form map[string]string
	JSON any
	// NoRaise accepts any status. By default a status above 400 fails the
	// test.
	NoRaise bool
}

// Login starts a session for username with the default password.
func (h *Harness) Login(username string) *resty.Response {
	h.t.Helper()
	return h.LoginWithPassword(username, DefaultPassword)
}

// LoginWithPassword starts a session. The test fails unless the server
// accepts the credentials.
func (h *Harness) LoginWithPassword(username, password string) *resty.Response {
	h.t.Helper()
	resp, err := h.Client.R().
		SetFormData(map[string]string{"username": username, "password": password}).
		Post("/login/")
	h.req.NoError(err)
	h.req.Equal(http.StatusOK, resp.StatusCode(), "login as %s failed: %s", username, resp.String())
	h.loggedIn = username
	return resp
}

// Logout ends the session, following the redirect to the login page.
func (h *Harness) Logout() {
	h.t.Helper()
	resp, err := h.Client.R().Get("/logout/")
	h.req.NoError(err)
	h.req.Less(resp.StatusCode(), http.StatusBadRequest, "logout failed: %s", resp.String())
	h.loggedIn = ""
}

// LoggedIn returns the username of the current session, or "".
func (h *Harness) LoggedIn() string { return h.loggedIn }

// GetResp issues a request and returns the response body.
func (h *Harness) GetResp(url string, opts RequestOptions) string {
	h.t.Helper()
	req := h.Client.R()
	var (
		resp *resty.Response
		err  error
	)
	switch {
	case opts.Form != nil:
		resp, err = req.SetFormData(opts.Form).Post(url)
	case opts.JSON != nil:
		resp, err = req.SetHeader("Content-Type", "application/json").SetBody(opts.JSON).Post(url)
	default:
		resp, err = req.Get(url)
	}
	h.req.NoError(err)
	if !opts.NoRaise && resp.StatusCode() > http.StatusBadRequest {
		h.req.FailNow(fmt.Sprintf("http request failed with code %d", resp.StatusCode()), resp.String())
	}
	return resp.String()
}

// GetJSONResp is GetResp with the body decoded as a JSON object.
func (h *Harness) GetJSONResp(url string, opts RequestOptions) map[string]any {
	h.t.Helper()
	body := h.GetResp(url, opts)
	var out map[string]any
	h.req.NoError(json.Unmarshal([]byte(body), &out), "response is not a JSON object: %s", body)
	return out
}

// JSON parses a response body for path assertions.
func (h *Harness) JSON(resp *resty.Response) *gabs.Container {
	h.t.Helper()
	c, err := gabs.ParseJSON(resp.Body())
	h.req.NoError(err, "response is not JSON: %s", resp.String())
	return c
}
