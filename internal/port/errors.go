package port

import "errors"

// Errors returned by DatabaseRepository implementations.
var (
	ErrNotFound       = errors.New("not found")
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrAlreadyLinked  = errors.New("product already linked to another group")
)

// ErrLockTimeout is returned by CacheRepository.LockProduct when the product
// link lock stays taken.
var ErrLockTimeout = errors.New("timed out waiting for product lock")
