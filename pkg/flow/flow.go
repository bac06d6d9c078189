// Package flow handles parsing and representation of JSON test files.
package flow

// Flow represents a parsed test file.
type Flow struct {
	SourcePath string   // Reference the file was resolved from
	Name       string   // Test name (file base name without extension)
	Actions    []Action // Actions in execution order
}

// FirstInteractive returns the index of the first non-metadata action, or -1.
func (f *Flow) FirstInteractive() int {
	for i, a := range f.Actions {
		if a.Kind != KindMetadata {
			return i
		}
	}
	return -1
}

// CompleteIndex returns the index of the first Complete action, or -1.
// Actions after it never run.
func (f *Flow) CompleteIndex() int {
	for i, a := range f.Actions {
		if a.Kind == KindComplete {
			return i
		}
	}
	return -1
}
