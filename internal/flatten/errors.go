package flatten

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError through errors.Is.
var ErrValidation = errors.New("flatten: validation failed")

// ValidationError reports a source variant whose required relations are absent.
type ValidationError struct {
	VariantID string
	Relation  string
	WineTitle *string
}

func (e *ValidationError) Error() string {
	wineTitle := "null"
	if e.WineTitle != nil {
		wineTitle = fmt.Sprintf("%q", *e.WineTitle)
	}
	return fmt.Sprintf("flatten: variant %s: %s is missing or has no title (wine %s)", e.VariantID, e.Relation, wineTitle)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ServiceError carries an "<operation>.<reason>" code for sync failures.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opSyncerNew   = "flatten.syncer.new"
	opSyncVariant = "flatten.sync_variant"
	opEnqueueAll  = "flatten.enqueue_all"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
