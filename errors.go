package ogm

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors. Typed errors below match them through errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist in the graph.
	ErrNotFound = errors.New("ogm: entity not found")

	// ErrScan is returned when metadata discovery fails.
	ErrScan = errors.New("ogm: metadata scan failed")

	// ErrUnknownType is returned when a class is not present in the metadata index.
	ErrUnknownType = errors.New("ogm: unknown type")

	// ErrNoAccessor is returned when no member of a class can serve a role.
	ErrNoAccessor = errors.New("ogm: no accessor")

	// ErrTxState is returned when a transaction operation is illegal in the current state.
	ErrTxState = errors.New("ogm: illegal transaction state")

	// ErrTxClosed is returned when work is appended to a finished transaction.
	ErrTxClosed = errors.New("ogm: transaction closed")

	// ErrTxStarted is returned when attempting to start a new transaction
	// while the unit of work still has an open one.
	ErrTxStarted = errors.New("ogm: cannot start a transaction within a transaction")

	// ErrRemote is returned when the transport fails to execute a request.
	ErrRemote = errors.New("ogm: remote execution failed")

	// ErrReadOnlyQuery is returned when a read-only query contains a write clause.
	ErrReadOnlyQuery = errors.New("ogm: query is not read-only")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("ogm: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("ogm: %s not found", e.label)
}

// Is reports whether the target error matches ErrNotFound.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given label and id.
func NewNotFoundError(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ScanError is returned when a scan root cannot be read.
type ScanError struct {
	Root string // Scan root that failed
	Err  error  // Underlying error
}

// Error returns the error string.
func (e *ScanError) Error() string {
	return fmt.Sprintf("ogm: scanning %q: %v", e.Root, e.Err)
}

// Is reports whether the target error matches ErrScan.
func (e *ScanError) Is(err error) bool {
	return err == ErrScan
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError returns a new ScanError.
func NewScanError(root string, err error) *ScanError {
	return &ScanError{Root: root, Err: err}
}

// IsScanError returns true if the error is a ScanError.
func IsScanError(err error) bool {
	if err == nil {
		return false
	}
	var e *ScanError
	return errors.As(err, &e)
}

// UnknownTypeError is returned when a class is not registered.
type UnknownTypeError struct {
	Name string
}

// Error returns the error string.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("ogm: unknown type %q", e.Name)
}

// Is reports whether the target error matches ErrUnknownType.
func (e *UnknownTypeError) Is(err error) bool {
	return err == ErrUnknownType
}

// NewUnknownTypeError returns a new UnknownTypeError.
func NewUnknownTypeError(name string) *UnknownTypeError {
	return &UnknownTypeError{Name: name}
}

// IsUnknownType returns true if the error is an UnknownTypeError.
func IsUnknownType(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownTypeError
	return errors.As(err, &e)
}

// NoAccessorError is returned when no field or method of a class can serve
// the requested role.
type NoAccessorError struct {
	Class string // Qualified class name
	Role  string // Requested role
	Name  string // Property or relationship name, if any
	Write bool   // Whether a writer was requested
}

// Error returns the error string.
func (e *NoAccessorError) Error() string {
	kind := "reader"
	if e.Write {
		kind = "writer"
	}
	if e.Name != "" {
		return fmt.Sprintf("ogm: no %s for %s %q on %s", kind, e.Role, e.Name, e.Class)
	}
	return fmt.Sprintf("ogm: no %s for %s on %s", kind, e.Role, e.Class)
}

// Is reports whether the target error matches ErrNoAccessor.
func (e *NoAccessorError) Is(err error) bool {
	return err == ErrNoAccessor
}

// IsNoAccessor returns true if the error is a NoAccessorError.
func IsNoAccessor(err error) bool {
	if err == nil {
		return false
	}
	var e *NoAccessorError
	return errors.As(err, &e)
}

// TransactionStateError is returned when a transaction operation is not legal
// in the handle's current state.
type TransactionStateError struct {
	ID     string // Transaction handle ID
	Op     string // Attempted operation
	Status string // Status at the time of the attempt
}

// Error returns the error string.
func (e *TransactionStateError) Error() string {
	return fmt.Sprintf("ogm: cannot %s transaction %s in state %s", e.Op, e.ID, e.Status)
}

// Is reports whether the target error matches ErrTxState.
func (e *TransactionStateError) Is(err error) bool {
	return err == ErrTxState
}

// NewTransactionStateError returns a new TransactionStateError.
func NewTransactionStateError(id, op, status string) *TransactionStateError {
	return &TransactionStateError{ID: id, Op: op, Status: status}
}

// IsTransactionStateError returns true if the error is a TransactionStateError.
func IsTransactionStateError(err error) bool {
	if err == nil {
		return false
	}
	var e *TransactionStateError
	return errors.As(err, &e)
}

// TransactionClosedError is returned when work is appended to a transaction
// that already reached a terminal state.
type TransactionClosedError struct {
	ID     string
	Status string
}

// Error returns the error string.
func (e *TransactionClosedError) Error() string {
	return fmt.Sprintf("ogm: transaction %s is %s", e.ID, e.Status)
}

// Is reports whether the target error matches ErrTxClosed.
func (e *TransactionClosedError) Is(err error) bool {
	return err == ErrTxClosed
}

// NewTransactionClosedError returns a new TransactionClosedError.
func NewTransactionClosedError(id, status string) *TransactionClosedError {
	return &TransactionClosedError{ID: id, Status: status}
}

// IsTransactionClosed returns true if the error is a TransactionClosedError.
func IsTransactionClosed(err error) bool {
	if err == nil {
		return false
	}
	var e *TransactionClosedError
	return errors.As(err, &e)
}

// RemoteExecutionError wraps a failure reported by the transport.
type RemoteExecutionError struct {
	Op       string // begin, execute, commit or rollback
	Endpoint string // Endpoint URL, if one was assigned
	Err      error  // Transport error
}

// Error returns the error string.
func (e *RemoteExecutionError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("ogm: remote %s (%s): %v", e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("ogm: remote %s: %v", e.Op, e.Err)
}

// Is reports whether the target error matches ErrRemote.
func (e *RemoteExecutionError) Is(err error) bool {
	return err == ErrRemote
}

// Unwrap returns the underlying error.
func (e *RemoteExecutionError) Unwrap() error {
	return e.Err
}

// NewRemoteExecutionError returns a new RemoteExecutionError.
func NewRemoteExecutionError(op, endpoint string, err error) *RemoteExecutionError {
	return &RemoteExecutionError{Op: op, Endpoint: endpoint, Err: err}
}

// IsRemoteExecutionError returns true if the error is a RemoteExecutionError.
func IsRemoteExecutionError(err error) bool {
	if err == nil {
		return false
	}
	var e *RemoteExecutionError
	return errors.As(err, &e)
}

// ValidationError is returned when a class fails metadata validation.
type ValidationError struct {
	Name string // Qualified class name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("ogm: validation failed for class %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given class.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// MappingError wraps a failure moving a value between an entity and the graph.
type MappingError struct {
	Class  string // Qualified class name
	Member string // Field or method name
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MappingError) Error() string {
	return fmt.Sprintf("ogm: mapping %s.%s: %v", e.Class, e.Member, e.Err)
}

// Unwrap returns the underlying error.
func (e *MappingError) Unwrap() error {
	return e.Err
}

// NewMappingError returns a new MappingError.
func NewMappingError(class, member string, err error) *MappingError {
	return &MappingError{Class: class, Member: member, Err: err}
}

// IsMappingError returns true if the error is a MappingError.
func IsMappingError(err error) bool {
	if err == nil {
		return false
	}
	var e *MappingError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("ogm: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "ogm: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("ogm: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
