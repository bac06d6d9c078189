// Package mock provides an in-memory browser for testing without a real browser.
package mock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// Element is one element on a mock page.
type Element struct {
	ID         string
	Hidden     bool
	Value      string
	Checked    bool
	Options    []string // Option values when the element is a <select>
	NavigateTo string   // Clicking the element loads this URL
	Attributes map[string]string
}

// Page is a mock page keyed by URL.
type Page struct {
	URL        string
	RedirectTo string // Loading the page lands on this URL instead
	Elements   map[string]*Element
}

// Config configures mock driver behavior.
type Config struct {
	// ActionDelay adds artificial delay per command
	ActionDelay time.Duration
	// Browser name to report
	Browser string
}

// Driver is a mock implementation of core.Driver for testing.
type Driver struct {
	Config Config

	mu      sync.Mutex
	pages   map[string]*Page
	current string
	calls   []string
	fail    map[string]error // keyed by "op id"
	quit    bool
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.Browser == "" {
		cfg.Browser = "mock"
	}
	return &Driver{
		Config: cfg,
		pages:  make(map[string]*Page),
		fail:   make(map[string]error),
	}
}

// AddPage registers a page and returns the driver for chaining.
func (d *Driver) AddPage(url string, elems ...*Element) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := &Page{URL: url, Elements: make(map[string]*Element)}
	for _, e := range elems {
		p.Elements[e.ID] = e
	}
	d.pages[url] = p
	return d
}

// Redirect makes loading from land on to.
func (d *Driver) Redirect(from, to string) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pages[from]
	if !ok {
		p = &Page{URL: from, Elements: make(map[string]*Element)}
		d.pages[from] = p
	}
	p.RedirectTo = to
	return d
}

// SetURL moves the browser to url without recording a navigation, as a
// client-side redirect would.
func (d *Driver) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = url
}

// FailOn makes the operation op ("click", "sendKeys", "select", "toggle",
// "clear", "attribute", "present", "displayed", "navigate", "url",
// "screenshot") on id return err. Use an empty id for url, navigate and
// screenshot.
func (d *Driver) FailOn(op, id string, err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[op+" "+id] = err
	return d
}

// Calls returns the recorded commands, e.g. "navigate https://ex", "click next".
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsWithPrefix returns recorded commands starting with prefix.
func (d *Driver) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Element returns the element with id on the current page, or nil.
func (d *Driver) Element(id string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.element(id)
}

// Quitted reports whether Quit was called.
func (d *Driver) Quitted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quit
}

// Browser returns mock browser info.
func (d *Driver) Browser() core.BrowserInfo {
	return core.BrowserInfo{Name: d.Config.Browser, Version: "1.0", Headless: true}
}

func (d *Driver) element(id string) *Element {
	p, ok := d.pages[d.current]
	if !ok {
		return nil
	}
	return p.Elements[id]
}

func (d *Driver) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// begin records a command and returns its injected failure, if any.
func (d *Driver) begin(op, id string, record bool) error {
	if d.Config.ActionDelay > 0 {
		time.Sleep(d.Config.ActionDelay)
	}
	if record {
		if id != "" {
			d.record("%s %s", op, id)
		} else {
			d.record("%s", op)
		}
	}
	return d.fail[op+" "+id]
}

func (d *Driver) mustElement(id string) (*Element, error) {
	e := d.element(id)
	if e == nil {
		return nil, core.ErrElementNotFound.WithMessage(fmt.Sprintf("no such element: #%s", id))
	}
	return e, nil
}

func (d *Driver) load(url string) {
	d.current = url
	if p, ok := d.pages[url]; ok && p.RedirectTo != "" {
		d.current = p.RedirectTo
	}
}

// Navigate loads url, following a registered redirect.
func (d *Driver) Navigate(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Config.ActionDelay > 0 {
		time.Sleep(d.Config.ActionDelay)
	}
	d.record("navigate %s", url)
	if err := d.fail["navigate "]; err != nil {
		return err
	}
	d.load(url)
	return nil
}

// CurrentURL returns the current URL.
func (d *Driver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fail["url "]; err != nil {
		return "", err
	}
	return d.current, nil
}

// ElementPresent reports whether id exists on the current page.
func (d *Driver) ElementPresent(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fail["present "+id]; err != nil {
		return false, err
	}
	return d.element(id) != nil, nil
}

// ElementDisplayed reports whether id is visible.
func (d *Driver) ElementDisplayed(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fail["displayed "+id]; err != nil {
		return false, err
	}
	e, err := d.mustElement(id)
	if err != nil {
		return false, err
	}
	return !e.Hidden, nil
}

// Click clicks id, following its NavigateTo target.
func (d *Driver) Click(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("click", id, true); err != nil {
		return err
	}
	e, err := d.mustElement(id)
	if err != nil {
		return err
	}
	if e.NavigateTo != "" {
		d.load(e.NavigateTo)
	}
	return nil
}

// Clear empties id's value.
func (d *Driver) Clear(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("clear", id, true); err != nil {
		return err
	}
	e, err := d.mustElement(id)
	if err != nil {
		return err
	}
	e.Value = ""
	return nil
}

// SendKeys appends text to id's value.
func (d *Driver) SendKeys(id, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("sendKeys", id, false); err != nil {
		return err
	}
	d.record("sendKeys %s %s", id, text)
	e, err := d.mustElement(id)
	if err != nil {
		return err
	}
	e.Value += text
	return nil
}

// SelectByValue selects an option of id.
func (d *Driver) SelectByValue(id, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("select", id, false); err != nil {
		return err
	}
	d.record("select %s %s", id, value)
	e, err := d.mustElement(id)
	if err != nil {
		return err
	}
	for _, o := range e.Options {
		if o == value {
			e.Value = value
			return nil
		}
	}
	return core.ErrInteraction.WithMessage(fmt.Sprintf("cannot locate option with value: %s", value))
}

// ToggleChecked flips id's checked state.
func (d *Driver) ToggleChecked(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("toggle", id, true); err != nil {
		return err
	}
	e, err := d.mustElement(id)
	if err != nil {
		return err
	}
	e.Checked = !e.Checked
	return nil
}

// Attribute returns "value" or a registered attribute of id.
func (d *Driver) Attribute(id, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("attribute", id, false); err != nil {
		return "", err
	}
	e, err := d.mustElement(id)
	if err != nil {
		return "", err
	}
	if name == "value" {
		return e.Value, nil
	}
	return e.Attributes[name], nil
}

// Quit ends the mock session.
func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("quit")
	d.quit = true
	return nil
}

// Screenshot returns PNG magic bytes.
func (d *Driver) Screenshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin("screenshot", "", true); err != nil {
		return nil, err
	}
	return []byte{0x89, 0x50, 0x4E, 0x47}, nil
}
