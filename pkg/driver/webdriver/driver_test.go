package webdriver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// fakeServer is a minimal W3C endpoint holding a fixed set of elements keyed
// by their CSS [id="..."] selector.
type fakeServer struct {
	mu       sync.Mutex
	url      string
	elements map[string]string // selector -> element id
	options  map[string]string // "elem option[value=...]" -> option element id
	hidden   map[string]bool
	props    map[string]string
	errs     map[string]string // request path -> W3C error code
	requests []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		elements: map[string]string{},
		options:  map[string]string{},
		hidden:   map[string]bool{},
		props:    map[string]string{},
		errs:     map[string]string{},
	}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/session/s")
	f.requests = append(f.requests, r.Method+" "+path)

	if code, ok := f.errs[path]; ok {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"error": code, "message": code}})
		return
	}

	var body map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.URL.Path == "/session" && r.Method == "POST":
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{
			"sessionId":    "s",
			"capabilities": map[string]interface{}{"browserName": "chrome", "browserVersion": "126"},
		}})
	case path == "/url" && r.Method == "POST":
		f.url, _ = body["url"].(string)
		writeJSON(w, map[string]interface{}{"value": nil})
	case path == "/url":
		writeJSON(w, map[string]interface{}{"value": f.url})
	case path == "/element" || path == "/elements":
		sel, _ := body["value"].(string)
		id, ok := f.elements[sel]
		if path == "/elements" {
			var list []interface{}
			if ok {
				list = append(list, map[string]interface{}{w3cElementKey: id})
			}
			writeJSON(w, map[string]interface{}{"value": list})
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"error": "no such element", "message": sel}})
			return
		}
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{w3cElementKey: id}})
	case strings.HasSuffix(path, "/element") && strings.HasPrefix(path, "/element/"):
		parent := strings.TrimSuffix(strings.TrimPrefix(path, "/element/"), "/element")
		sel, _ := body["value"].(string)
		id, ok := f.options[parent+" "+sel]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"error": "no such element", "message": sel}})
			return
		}
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{w3cElementKey: id}})
	case strings.HasSuffix(path, "/displayed"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/element/"), "/displayed")
		writeJSON(w, map[string]interface{}{"value": !f.hidden[id]})
	case strings.Contains(path, "/property/") || strings.Contains(path, "/attribute/"):
		writeJSON(w, map[string]interface{}{"value": f.props[path]})
	default:
		writeJSON(w, map[string]interface{}{"value": nil})
	}
}

func (f *fakeServer) requestsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func newTestDriver(t *testing.T, f *fakeServer) *Driver {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	caps, err := Capabilities(BrowserChrome, true)
	require.NoError(t, err)
	d, err := NewDriver(NewClient(server.URL), caps)
	require.NoError(t, err)
	return d
}

func TestCapabilities(t *testing.T) {
	caps, err := Capabilities("Chrome", true)
	require.NoError(t, err)
	opts := caps["goog:chromeOptions"].(map[string]interface{})
	assert.Contains(t, opts["args"].([]string), "--headless=new")

	caps, err = Capabilities("firefox", true)
	require.NoError(t, err)
	ffArgs := caps["moz:firefoxOptions"].(map[string]interface{})["args"].([]string)
	assert.Equal(t, []string{"-headless"}, ffArgs)

	_, err = Capabilities("Safari", false)
	assert.ErrorIs(t, err, core.ErrUnknownBrowser)
}

func TestNewDriver_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewDriver(NewClient(url), map[string]interface{}{"browserName": "chrome"})
	assert.ErrorIs(t, err, core.ErrServerUnreachable)
}

func TestDriver_Browser(t *testing.T) {
	d := newTestDriver(t, newFakeServer())
	info := d.Browser()
	assert.Equal(t, "chrome", info.Name)
	assert.Equal(t, "126", info.Version)
}

func TestDriver_NavigateAndURL(t *testing.T) {
	d := newTestDriver(t, newFakeServer())

	require.NoError(t, d.Navigate("https://ex/signin"))
	url, err := d.CurrentURL()
	require.NoError(t, err)
	assert.Equal(t, "https://ex/signin", url)
}

func TestDriver_ElementPresentAndDisplayed(t *testing.T) {
	f := newFakeServer()
	f.elements[`[id="email"]`] = "e1"
	f.elements[`[id="spinner"]`] = "e2"
	f.hidden["e2"] = true
	d := newTestDriver(t, f)

	present, err := d.ElementPresent("email")
	require.NoError(t, err)
	assert.True(t, present)

	present, err = d.ElementPresent("missing")
	require.NoError(t, err)
	assert.False(t, present)

	displayed, err := d.ElementDisplayed("email")
	require.NoError(t, err)
	assert.True(t, displayed)

	displayed, err = d.ElementDisplayed("spinner")
	require.NoError(t, err)
	assert.False(t, displayed)

	_, err = d.ElementDisplayed("missing")
	assert.ErrorIs(t, err, core.ErrElementNotFound)
}

func TestDriver_Interactions(t *testing.T) {
	f := newFakeServer()
	f.elements[`[id="email"]`] = "e1"
	f.elements[`[id="next"]`] = "e2"
	f.elements[`[id="terms"]`] = "e3"
	d := newTestDriver(t, f)

	assert.NoError(t, d.Clear("email"))
	assert.NoError(t, d.SendKeys("email", "a@b.c"))
	assert.NoError(t, d.Click("next"))
	assert.NoError(t, d.ToggleChecked("terms"))

	assert.Equal(t, []string{
		"POST /element/e1/clear",
		"POST /element/e1/value",
		"POST /element/e2/click",
		"POST /element/e3/click",
	}, f.requestsWithPrefix("POST /element/"))
}

func TestDriver_ClickMissingElement(t *testing.T) {
	d := newTestDriver(t, newFakeServer())

	err := d.Click("ghost")
	require.ErrorIs(t, err, core.ErrElementNotFound)
	assert.Contains(t, err.Error(), "#ghost")
}

func TestDriver_ClickIntercepted(t *testing.T) {
	f := newFakeServer()
	f.elements[`[id="next"]`] = "e2"
	f.errs["/element/e2/click"] = "element click intercepted"
	d := newTestDriver(t, f)

	err := d.Click("next")
	assert.ErrorIs(t, err, core.ErrInteraction)
	assert.Equal(t, core.ErrCategoryInteraction, core.CategoryOf(err))
}

func TestDriver_SelectByValue(t *testing.T) {
	f := newFakeServer()
	f.elements[`[id="country"]`] = "sel"
	f.options[`sel option[value="NZ"]`] = "opt-nz"
	d := newTestDriver(t, f)

	require.NoError(t, d.SelectByValue("country", "NZ"))
	assert.Len(t, f.requestsWithPrefix("POST /element/opt-nz/click"), 1)

	assert.ErrorIs(t, d.SelectByValue("country", "XX"), core.ErrInteraction)
}

func TestDriver_Attribute(t *testing.T) {
	f := newFakeServer()
	f.elements[`[id="email"]`] = "e1"
	f.props["/element/e1/property/value"] = "typed@ex.com"
	f.props["/element/e1/attribute/placeholder"] = "Email"
	d := newTestDriver(t, f)

	v, err := d.Attribute("email", "value")
	require.NoError(t, err)
	assert.Equal(t, "typed@ex.com", v)

	v, err = d.Attribute("email", "placeholder")
	require.NoError(t, err)
	assert.Equal(t, "Email", v)
}

func TestDriver_Quit(t *testing.T) {
	f := newFakeServer()
	d := newTestDriver(t, f)

	require.NoError(t, d.Quit())
	assert.Len(t, f.requestsWithPrefix("DELETE "), 1)
}

func TestByID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"next", `[id="next"]`},
		{`a"b`, `[id="a\"b"]`},
		{`a\b`, `[id="a\\b"]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, byID(tt.id), tt.id)
	}
}

func TestBinaryName(t *testing.T) {
	assert.True(t, strings.HasPrefix(BinaryName("Firefox"), "geckodriver"))
	assert.True(t, strings.HasPrefix(BinaryName("chrome"), "chromedriver"))
}

func TestFindBinary_DriversDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, BinaryName("chrome"))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	got, err := FindBinary("chrome", dir)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
