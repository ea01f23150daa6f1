package merge

import "errors"

var (
	// ErrCatalogNotFound is returned when no input contributes a Catalog.
	ErrCatalogNotFound = errors.New("catalog not found")
	// ErrPagesNotFound is returned when no input contributes a Pages dictionary.
	ErrPagesNotFound = errors.New("Pages root not found")
)
