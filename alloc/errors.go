package alloc

import "github.com/pkg/errors"

// ErrOutOfMemory is returned from Allocate, AllocateZeroed, and Resize when
// the arena cannot be grown far enough to satisfy the request. The underlying
// arena failure is attached to the returned error chain.
var ErrOutOfMemory error = errors.New("heap cannot satisfy the requested size")
