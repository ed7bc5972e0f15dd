package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	pkgerrors "github.com/glorpus-work/fluffpkg/pkg/errors"
)

// DefaultTimeout bounds how long a single hook script may run.
const DefaultTimeout = 5 * time.Minute

// TengoExecutor compiles and runs tengo scripts with the fmt, os, strings,
// text and times standard modules available.
type TengoExecutor struct {
	Timeout time.Duration
}

// NewTengoExecutor creates a new Tengo script executor.
func NewTengoExecutor() *TengoExecutor {
	return &TengoExecutor{Timeout: DefaultTimeout}
}

// Execute runs script with vars declared as global variables. A script
// reports failure by setting the global "err" to an error or a non-empty
// string.
func (e *TengoExecutor) Execute(name string, script []byte, vars map[string]interface{}) error {
	s := tengo.NewScript(script)
	s.SetImports(stdlib.GetModuleMap("fmt", "os", "strings", "text", "times"))

	for k, v := range vars {
		if err := s.Add(k, v); err != nil {
			return fmt.Errorf("failed to add variable '%s' to script %s: %w", k, name, err)
		}
	}
	// declared so scripts can assign it without := at top level
	if _, ok := vars["err"]; !ok {
		if err := s.Add("err", ""); err != nil {
			return fmt.Errorf("failed to declare err in script %s: %w", name, err)
		}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	compiled, err := s.RunContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", name, pkgerrors.ErrHookExecution, err)
	}

	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return fmt.Errorf("%s: %w: %w", name, pkgerrors.ErrHookScript, v)
		case string:
			if v != "" {
				return fmt.Errorf("%s: %w: %s", name, pkgerrors.ErrHookScript, v)
			}
		}
	}
	return nil
}
