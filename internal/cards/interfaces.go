package cards

import "context"

// ContentQuery executes a query against the site's content and returns an opaque result.
type ContentQuery interface {
	Run(ctx context.Context, query string) (any, error)
}

// Extractor maps a content query result to pages, preserving order.
type Extractor func(result any) ([]PageRecord, error)

// PageRegistrar hands page-creation requests to the host build.
type PageRegistrar interface {
	CreatePage(ctx context.Context, page PageRequest) error
}

// Inventory lists the card images already present in the output root.
type Inventory interface {
	Existing(ctx context.Context, specs []CardSpec) (ExistingOutputSet, error)
}

// JobCache carries a JobBatch from the planning invocation to the capture invocation.
// Get returns an empty, non-nil batch when nothing was stored under key.
type JobCache interface {
	Set(ctx context.Context, key string, batch JobBatch) error
	Get(ctx context.Context, key string) (JobBatch, error)
	Close() error
}

// Capturer renders one page and writes a PNG crop to the destination.
// Failures are returned as *CaptureError.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) error
}
