package catalog

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrMutationFailed matches every *MutationError via errors.Is.
var ErrMutationFailed = errors.New("mutation failed")

// ErrProvisional is returned for updates and removals addressed to a
// temporary id. Such a product exists only until its create settles.
var ErrProvisional = errors.New("product is still being created")

// Op names a mutation kind.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// MutationError reports a mutation whose remote call failed. By the time it
// is returned the speculative patch has already been rolled back.
type MutationError struct {
	Op        Op
	ProductID int64
	Mutation  uuid.UUID
	Err       error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s product %d: %v", e.Op, e.ProductID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMutationFailed) match any MutationError.
func (e *MutationError) Is(target error) bool {
	return target == ErrMutationFailed
}
