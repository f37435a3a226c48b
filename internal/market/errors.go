package market

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAsset = errors.New("invalid asset")
	ErrNoData       = errors.New("no data")
	ErrFetch        = errors.New("fetch failed")
	ErrStorage      = errors.New("storage failure")
	ErrBus          = errors.New("bus failure")
)

// ValidationError reports a missing or unsupported asset identifier.
type ValidationError struct {
	Asset     string
	Missing   bool
	Supported []string
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return "Coin parameter is required"
	}
	return "Invalid coin. Supported coins are: " + strings.Join(e.Supported, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidAsset }

// NoDataError means no snapshot is available for Asset, even after a refresh attempt.
type NoDataError struct {
	Asset string
	Err   error // cause of the failed refresh, if any
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("No stats found for %s", e.Asset)
}

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }
func (e *NoDataError) Unwrap() error        { return e.Err }

// FetchError identifies the provider id whose fetch failed.
type FetchError struct {
	Asset string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Failed to fetch data for %s: %v", e.Asset, e.Err)
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }
func (e *FetchError) Unwrap() error        { return e.Err }

// StorageError wraps a backing store failure for operation Op.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
func (e *StorageError) Unwrap() error        { return e.Err }

// BusError wraps a message bus failure for operation Op.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s: %v", e.Op, e.Err)
}

func (e *BusError) Is(target error) bool { return target == ErrBus }
func (e *BusError) Unwrap() error        { return e.Err }
