// Package core provides the execution model types for flowrunner.
package core

// Driver defines the browser capabilities the interpreter relies on.
// Elements are addressed by their DOM id.
// Implementations: WebDriver (chromedriver, geckodriver, remote grid), Mock.
type Driver interface {
	// Navigate loads url in the current window.
	Navigate(url string) error

	// CurrentURL returns the URL of the current page.
	CurrentURL() (string, error)

	// ElementPresent reports whether an element with id exists in the DOM.
	ElementPresent(id string) (bool, error)

	// ElementDisplayed reports whether the element is visible.
	// Returns ErrElementNotFound if the element does not exist.
	ElementDisplayed(id string) (bool, error)

	// Click clicks the element.
	Click(id string) error

	// Clear empties an input element.
	Clear(id string) error

	// SendKeys types text into the element.
	SendKeys(id, text string) error

	// SelectByValue selects the option of a <select> whose value attribute matches.
	SelectByValue(id, value string) error

	// ToggleChecked flips the checked state of a checkbox.
	ToggleChecked(id string) error

	// Attribute returns a property or attribute of the element.
	Attribute(id, name string) (string, error)

	// Quit ends the browser session.
	Quit() error
}

// BrowserInfo describes the browser behind a driver.
type BrowserInfo struct {
	Name      string `json:"name"`              // chrome, firefox, mock
	Version   string `json:"version,omitempty"` // Reported by the session
	Headless  bool   `json:"headless"`
	ServerURL string `json:"serverUrl,omitempty"`
}
