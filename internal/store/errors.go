package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownTable is returned for a table outside the table list.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownModel is returned when a record's model has no registered type.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInvalidBreadcrumb is returned for malformed breadcrumbs.
	ErrInvalidBreadcrumb = errors.New("invalid breadcrumb")
	// ErrOutOfRange is returned when a breadcrumb points past the end of a list.
	ErrOutOfRange = errors.New("breadcrumb out of range")
	// ErrMixedModels is returned when one Store call mixes record models.
	ErrMixedModels = errors.New("records must share one model")
	// ErrLevelMismatch is returned when a record does not belong at a breadcrumb's level.
	ErrLevelMismatch = errors.New("record does not match breadcrumb level")
	// ErrImmutableField is returned when an update targets id or model.
	ErrImmutableField = errors.New("field cannot be updated")
	// ErrNotArray is returned by PushUpdate when the property is not a list.
	ErrNotArray = errors.New("property is not a list")
	// ErrUnknownTier is returned by SearchTier for an unsupported tier.
	ErrUnknownTier = errors.New("unknown tier")
	// ErrReadOnly is returned when a read transaction attempts a write.
	ErrReadOnly = errors.New("read-only transaction")
	// ErrSchemaVersion is returned when opening a database written by a newer version.
	ErrSchemaVersion = errors.New("unsupported schema version")
	// ErrClosed is returned after the backend has been closed.
	ErrClosed = errors.New("store closed")
)
