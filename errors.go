package strata

import "errors"

var (
	// Configuration errors.
	ErrConfiguration   = errors.New("strata: invalid configuration")
	ErrUnknownEntity   = errors.New("strata: unknown entity")
	ErrDuplicateEntity = errors.New("strata: entity already registered")

	// Routing and readiness errors.
	ErrRouting   = errors.New("strata: routing id not found")
	ErrReadiness = errors.New("strata: collection not ready")
	ErrDestroy   = errors.New("strata: collection destroy failed")

	// Data errors.
	ErrNotFound       = errors.New("strata: record not found")
	ErrTenantConflict = errors.New("strata: record belongs to another tenant")
)
