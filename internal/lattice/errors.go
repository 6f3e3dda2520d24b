package lattice

import "codeberg.org/mutker/coherentd/internal/errors"

const (
	ErrUnknownNode    = errors.ErrorCode("lattice_unknown_node")
	ErrDuplicateChild = errors.ErrorCode("lattice_duplicate_child")
	ErrRootExists     = errors.ErrorCode("lattice_root_exists")
)
