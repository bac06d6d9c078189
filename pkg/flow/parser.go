package flow

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// parser walks one test document. Results carry byte offsets into doc,
// which line turns into line numbers.
type parser struct {
	doc string
	f   *Flow
}

// Parse parses test file content. Two encodings are accepted: an array of
// action arrays, or an object whose values are action arrays. In both cases
// the arrays are concatenated in document order.
func Parse(data []byte, sourcePath string) (*Flow, error) {
	f := &Flow{
		SourcePath: sourcePath,
		Name:       testName(sourcePath),
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty test file"}
	}
	if !gjson.ValidBytes(data) {
		return nil, &ParseError{Path: sourcePath, Message: "invalid json"}
	}

	// Root offsets are relative to the first non-space byte.
	lead := len(data) - len(bytes.TrimLeft(data, " \t\r\n"))
	p := &parser{doc: string(data), f: f}
	root := gjson.ParseBytes(data)
	root.Index = lead

	var err error
	switch {
	case root.IsArray(), root.IsObject():
		// Object keys are free-form labels; only their order matters.
		root.ForEach(func(_, group gjson.Result) bool {
			err = p.group(group)
			return err == nil
		})
	default:
		return nil, p.errorf(root, "test file must be an array or an object of action arrays")
	}
	if err != nil {
		return nil, err
	}

	if len(f.Actions) == 0 {
		return nil, p.errorf(root, "no actions found")
	}
	return f, nil
}

// group appends one action array. A bare action object is accepted as a
// group of one.
func (p *parser) group(r gjson.Result) error {
	switch {
	case r.IsArray():
		var err error
		r.ForEach(func(_, item gjson.Result) bool {
			err = p.action(item)
			return err == nil
		})
		return err
	case r.IsObject():
		return p.action(r)
	default:
		return p.errorf(r, "expected an array of actions")
	}
}

func (p *parser) action(r gjson.Result) error {
	if !r.IsObject() {
		return p.errorf(r, "action must be an object")
	}

	var fields [3]string
	for i, name := range []string{"id", "inputType", "value"} {
		v := r.Get(name)
		if v.IsArray() || v.IsObject() {
			return p.errorf(r, fmt.Sprintf("invalid action: %s must be a string", name))
		}
		fields[i] = v.String()
	}
	id, inputType, value := fields[0], fields[1], fields[2]
	if inputType == "" {
		return p.errorf(r, "action is missing inputType")
	}

	kind, fn, err := kindFor(inputType)
	if err != nil {
		return p.errorf(r, err.Error())
	}

	p.f.Actions = append(p.f.Actions, Action{
		ID:       id,
		Kind:     kind,
		Value:    value,
		Function: fn,
	})
	return nil
}

func (p *parser) errorf(r gjson.Result, msg string) *ParseError {
	return &ParseError{Path: p.f.SourcePath, Line: p.line(r), Message: msg}
}

// line returns the 1-based line of r, or 0 when its offset is unknown.
func (p *parser) line(r gjson.Result) int {
	if r.Index < 0 || r.Index > len(p.doc) {
		return 0
	}
	return strings.Count(p.doc[:r.Index], "\n") + 1
}

func testName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
