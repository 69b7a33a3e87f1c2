package contract

import "errors"

// ErrForeignKey is returned by in-memory repositories when a row references a missing parent.
var ErrForeignKey = errors.New("referenced row does not exist")
