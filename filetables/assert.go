//go:build !debugasserts

package filetables

import "github.com/wippyai/typestream/errors"

// DebugAsserts reports whether contract violations panic.
const DebugAsserts = false

func violation(err *errors.Error) error {
	return err
}
