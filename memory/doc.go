// Package memory implements the repositories with mutex guarded maps. It backs
// the test suites and single-node development servers.
package memory

import (
	"fmt"

	serrors "go.pilab.hu/authd/errors"
)

func duplicate(field, value, entity string) error {
	return serrors.Conflict(fmt.Sprintf("There's already %s: %q for %s.", field, value, entity), nil)
}
