package sources

import (
	"bytes"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed schema/source.schema.json
var schemaBytes []byte

const schemaURL = "source.schema.json"

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// Issue is a single schema violation in a source file.
type Issue struct {
	Path    string // instance location, e.g. "/0/package_name"
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError lists every schema violation found in a source file.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "source file does not match schema: " + strings.Join(parts, "; ")
}

// Unwrap makes a ValidationError match errors.ErrInvalidSource.
func (e *ValidationError) Unwrap() error { return errors.ErrInvalidSource }

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = errors.Internalf("unmarshaling source schema: %v", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = errors.Internalf("adding source schema: %v", err)
			return
		}
		compiledSchema, err = c.Compile(schemaURL)
		if err != nil {
			compileErr = errors.Internalf("compiling source schema: %v", err)
		}
	})
	return compiledSchema, compileErr
}

// Validate checks a JSON or YAML source document against the embedded
// schema. Violations are reported as a *ValidationError.
func Validate(data []byte) error {
	schema, err := getSchema()
	if err != nil {
		return err
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing source file: %w: %w", errors.ErrInvalidSource, err)
	}
	// round-trip through JSON so numbers become json.Number
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("converting source file to JSON: %w: %w", errors.ErrInvalidSource, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("preparing source file for validation: %w: %w", errors.ErrInvalidSource, err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !stderrors.As(err, &ve) {
		return fmt.Errorf("validating source file: %w", err)
	}
	return &ValidationError{Issues: collectIssues(ve, nil)}
}

// collectIssues flattens the validation error tree into its leaves.
func collectIssues(ve *jsonschema.ValidationError, issues []Issue) []Issue {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			issues = collectIssues(cause, issues)
		}
		return issues
	}
	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	msg := ve.Error()
	if ve.ErrorKind != nil {
		msg = ve.ErrorKind.LocalizedString(printer)
	}
	return append(issues, Issue{Path: path, Message: msg})
}
