package flow

import (
	"fmt"
	"strings"
)

// ActionKind represents the type of action.
type ActionKind int

// Action kinds.
const (
	KindMetadata ActionKind = iota // Ignored at run time
	KindStart                      // Navigate and verify arrival
	KindComplete                   // Verify arrival and mark the test passed
	KindNavigate
	KindText
	KindButton
	KindDropdown
	KindCheckbox
	KindFunction // Named side-effecting function, see Action.Function
)

// Wire names of the fixed input types.
const (
	InputStart    = "testCaseStart"
	InputComplete = "testCaseComplete"
	InputNavigate = "Navigate"
	InputText     = "Text"
	InputButton   = "Button"
	InputDropdown = "Dropdown"
	InputCheckbox = "Checkbox"
	InputMetadata = "metadata"

	// FunctionPrefix introduces a named function input type, e.g. "Fn::otpEmail".
	FunctionPrefix = "Fn::"
)

// Known function names.
const (
	FuncOTPEmail      = "otpEmail"
	FuncNewRandomUser = "newRandomUser"
	FuncSessionUser   = "sessionUser"
)

var inputKinds = map[string]ActionKind{
	InputStart:    KindStart,
	InputComplete: KindComplete,
	InputNavigate: KindNavigate,
	InputText:     KindText,
	InputButton:   KindButton,
	InputDropdown: KindDropdown,
	InputCheckbox: KindCheckbox,
	InputMetadata: KindMetadata,
}

var knownFunctions = map[string]bool{
	FuncOTPEmail:      true,
	FuncNewRandomUser: true,
	FuncSessionUser:   true,
}

// IsKnownFunction reports whether name can be dispatched.
func IsKnownFunction(name string) bool {
	return knownFunctions[name]
}

// String returns the wire name of the kind.
func (k ActionKind) String() string {
	switch k {
	case KindMetadata:
		return InputMetadata
	case KindStart:
		return InputStart
	case KindComplete:
		return InputComplete
	case KindNavigate:
		return InputNavigate
	case KindText:
		return InputText
	case KindButton:
		return InputButton
	case KindDropdown:
		return InputDropdown
	case KindCheckbox:
		return InputCheckbox
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// NeedsElement reports whether the action targets an element that must be
// present before it runs.
func (k ActionKind) NeedsElement() bool {
	switch k {
	case KindText, KindButton, KindDropdown, KindCheckbox, KindFunction:
		return true
	}
	return false
}

// Action is one declarative browser operation.
type Action struct {
	ID       string     // Target element id, may be empty for URL-only checks
	Kind     ActionKind // Closed action kind
	Value    string     // URL, input text, option value or function argument
	Function string     // Function name when Kind is KindFunction
}

// InputType returns the wire form of the action's kind.
func (a Action) InputType() string {
	if a.Kind == KindFunction {
		return FunctionPrefix + a.Function
	}
	return a.Kind.String()
}

// Describe returns a human-readable description.
func (a Action) Describe() string {
	switch a.Kind {
	case KindStart, KindNavigate, KindComplete:
		if a.ID != "" {
			return fmt.Sprintf("%s %s (#%s)", a.InputType(), a.Value, a.ID)
		}
		return fmt.Sprintf("%s %s", a.InputType(), a.Value)
	case KindMetadata:
		return InputMetadata
	default:
		return fmt.Sprintf("%s #%s", a.InputType(), a.ID)
	}
}

// kindFor maps an inputType to its kind and function name.
func kindFor(inputType string) (ActionKind, string, error) {
	if strings.HasPrefix(inputType, FunctionPrefix) {
		name := strings.TrimPrefix(inputType, FunctionPrefix)
		if !IsKnownFunction(name) {
			return 0, "", fmt.Errorf("unknown function %q", name)
		}
		return KindFunction, name, nil
	}
	if k, ok := inputKinds[inputType]; ok {
		return k, "", nil
	}
	return 0, "", fmt.Errorf("unknown inputType %q", inputType)
}
