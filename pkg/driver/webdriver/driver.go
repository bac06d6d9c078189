package webdriver

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/logger"
)

// Supported browsers.
const (
	BrowserChrome  = "chrome"
	BrowserFirefox = "firefox"
)

// DefaultPageLoadTimeout bounds a single navigation.
const DefaultPageLoadTimeout = 60 * time.Second

// Options configures a browser session.
type Options struct {
	Browser         string        // chrome or firefox
	ServerURL       string        // Remote WebDriver server; empty launches a local driver service
	DriversDir      string        // Directory searched for chromedriver/geckodriver before PATH
	Headless        bool          // Run the browser without a window
	PageLoadTimeout time.Duration // 0 uses DefaultPageLoadTimeout
	ServiceLog      io.Writer     // Driver service output, nil discards
}

// Driver implements core.Driver over a WebDriver session.
type Driver struct {
	client  *Client
	service *Service
	info    core.BrowserInfo
}

// Open starts (or connects to) a WebDriver server and creates a session.
func Open(opts Options) (*Driver, error) {
	caps, err := Capabilities(opts.Browser, opts.Headless)
	if err != nil {
		return nil, err
	}

	serverURL := opts.ServerURL
	var svc *Service
	if serverURL == "" {
		binary, err := FindBinary(opts.Browser, opts.DriversDir)
		if err != nil {
			return nil, err
		}
		svc, err = StartService(binary, opts.Browser, opts.ServiceLog, 30*time.Second)
		if err != nil {
			return nil, err
		}
		serverURL = svc.URL
	}

	d, err := NewDriver(NewClient(serverURL), caps)
	if err != nil {
		if svc != nil {
			svc.Stop()
		}
		return nil, err
	}
	d.service = svc
	d.info.Headless = opts.Headless
	d.info.ServerURL = serverURL

	pageLoad := opts.PageLoadTimeout
	if pageLoad <= 0 {
		pageLoad = DefaultPageLoadTimeout
	}
	if err := d.client.SetTimeouts(0, pageLoad); err != nil {
		logger.Warn("failed to set session timeouts: %v", err)
	}

	return d, nil
}

// NewDriver creates a session on client with the given capabilities.
func NewDriver(client *Client, capabilities map[string]interface{}) (*Driver, error) {
	if err := client.Connect(capabilities); err != nil {
		return nil, core.ErrServerUnreachable.WithCause(err)
	}

	name := client.BrowserName()
	if name == "" {
		name, _ = capabilities["browserName"].(string)
	}
	logger.Info("webdriver session %s started (%s %s)", client.SessionID(), name, client.BrowserVersion())

	return &Driver{
		client: client,
		info: core.BrowserInfo{
			Name:    name,
			Version: client.BrowserVersion(),
		},
	}, nil
}

// Capabilities returns W3C capabilities for a browser.
func Capabilities(browser string, headless bool) (map[string]interface{}, error) {
	switch strings.ToLower(browser) {
	case BrowserChrome:
		args := []string{"--disable-extensions", "--no-first-run"}
		if headless {
			args = append(args, "--headless=new", "--window-size=1280,1024")
		}
		return map[string]interface{}{
			"browserName":        BrowserChrome,
			"goog:chromeOptions": map[string]interface{}{"args": args},
		}, nil
	case BrowserFirefox:
		var args []string
		if headless {
			args = append(args, "-headless")
		}
		return map[string]interface{}{
			"browserName":        BrowserFirefox,
			"moz:firefoxOptions": map[string]interface{}{"args": args},
		}, nil
	default:
		return nil, core.ErrUnknownBrowser.WithMessage(fmt.Sprintf("unrecognized browser environment %q", browser))
	}
}

// Browser returns details of the running browser.
func (d *Driver) Browser() core.BrowserInfo {
	return d.info
}

// Navigate implements core.Driver.
func (d *Driver) Navigate(url string) error {
	if err := d.client.OpenURL(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL implements core.Driver.
func (d *Driver) CurrentURL() (string, error) {
	return d.client.GetURL()
}

// ElementPresent implements core.Driver.
func (d *Driver) ElementPresent(id string) (bool, error) {
	ids, err := d.client.FindElements("css selector", byID(id))
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// ElementDisplayed implements core.Driver.
func (d *Driver) ElementDisplayed(id string) (bool, error) {
	elem, err := d.find(id)
	if err != nil {
		return false, err
	}
	displayed, err := d.client.IsElementDisplayed(elem)
	if err != nil {
		return false, classify("displayed", id, err)
	}
	return displayed, nil
}

// Click implements core.Driver.
func (d *Driver) Click(id string) error {
	elem, err := d.find(id)
	if err != nil {
		return err
	}
	return classify("click", id, d.client.ClickElement(elem))
}

// Clear implements core.Driver.
func (d *Driver) Clear(id string) error {
	elem, err := d.find(id)
	if err != nil {
		return err
	}
	return classify("clear", id, d.client.ClearElement(elem))
}

// SendKeys implements core.Driver.
func (d *Driver) SendKeys(id, text string) error {
	elem, err := d.find(id)
	if err != nil {
		return err
	}
	return classify("send keys to", id, d.client.SendKeysToElement(elem, text))
}

// SelectByValue clicks the <option> of the select element whose value matches.
func (d *Driver) SelectByValue(id, value string) error {
	sel, err := d.find(id)
	if err != nil {
		return err
	}
	opt, err := d.client.FindElementFrom(sel, "css selector", "option[value="+quote(value)+"]")
	if err != nil {
		if IsNoSuchElement(err) {
			return core.ErrInteraction.WithMessage(fmt.Sprintf("cannot locate option with value %q in #%s", value, id))
		}
		return classify("select", id, err)
	}
	return classify("select", id, d.client.ClickElement(opt))
}

// ToggleChecked clicks the checkbox, which flips its checked state and fires
// its change handlers.
func (d *Driver) ToggleChecked(id string) error {
	elem, err := d.find(id)
	if err != nil {
		return err
	}
	return classify("toggle", id, d.client.ClickElement(elem))
}

// Attribute implements core.Driver. "value" reads the live DOM property so
// typed input is visible.
func (d *Driver) Attribute(id, name string) (string, error) {
	elem, err := d.find(id)
	if err != nil {
		return "", err
	}
	var v string
	if name == "value" {
		v, err = d.client.GetElementProperty(elem, name)
	} else {
		v, err = d.client.GetElementAttribute(elem, name)
	}
	if err != nil {
		return "", classify("read "+name+" of", id, err)
	}
	return v, nil
}

// Screenshot returns a PNG of the current window.
func (d *Driver) Screenshot() ([]byte, error) {
	return d.client.Screenshot()
}

// Quit ends the session and stops a locally launched driver service.
func (d *Driver) Quit() error {
	err := d.client.Disconnect()
	if d.service != nil {
		if serr := d.service.Stop(); serr != nil && err == nil {
			err = serr
		}
		d.service = nil
	}
	return err
}

func (d *Driver) find(id string) (string, error) {
	elem, err := d.client.FindElement("css selector", byID(id))
	if err != nil {
		return "", classify("find", id, err)
	}
	return elem, nil
}

// classify maps WebDriver errors onto the core taxonomy.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if IsNoSuchElement(err) {
		return core.ErrElementNotFound.WithMessage(fmt.Sprintf("no such element: #%s", id)).WithCause(err)
	}
	var we *Error
	if errors.As(err, &we) {
		switch we.Code {
		case "element click intercepted", "element not interactable", "invalid element state", "javascript error":
			return core.ErrInteraction.WithMessage(fmt.Sprintf("cannot %s #%s", op, id)).WithCause(err)
		}
	}
	return fmt.Errorf("%s #%s: %w", op, id, err)
}

// byID returns a CSS selector matching an element id exactly. W3C has no id
// locator strategy.
func byID(id string) string {
	return "[id=" + quote(id) + "]"
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
