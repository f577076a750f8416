package objectstore

import (
	"context"
	"fmt"
	"os"
)

// unavailableBackend stands in for a backend whose client could not be created
type unavailableBackend struct {
	err error
}

// Unavailable returns a Backend failing every transfer with err. Registering it
// keeps a known scheme from being skipped as unsupported.
func Unavailable(err error) Backend {
	return unavailableBackend{err: fmt.Errorf("object store backend unavailable: %w", err)}
}

func (b unavailableBackend) Upload(context.Context, string, string, *os.File) error {
	return b.err
}

func (b unavailableBackend) Download(context.Context, string, string, *os.File) error {
	return b.err
}

func (b unavailableBackend) Exists(context.Context, string, string) (bool, error) {
	return false, b.err
}
