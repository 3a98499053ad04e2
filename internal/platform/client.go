package platform

import (
	"context"
	"fmt"

	"github.com/roach88/cfgmigrate/internal/model"
)

// DefaultPageSize is the page size used by Drain.
const DefaultPageSize = 100

// ListFilter selects one page of a listing.
type ListFilter struct {
	Offset int
	Limit  int

	// IncludeSystem keeps platform-managed records (system feeds,
	// system-created exclusions) that are omitted by default.
	IncludeSystem bool
}

// Page is one page of a listing.
type Page struct {
	Objects []model.Object
	Total   int
	HasMore bool

	// NextOffset is the offset of the following page. Zero means
	// Offset + len(Objects); clients that drop records after paging
	// (system records) set it explicitly.
	NextOffset int
}

// Reader reads objects from an instance.
type Reader interface {
	// ListObjects returns one page of objects of kind.
	ListObjects(ctx context.Context, kind model.Kind, filter ListFilter) (Page, error)

	// GetObject returns one object. A missing object is a NOT_FOUND *Error.
	GetObject(ctx context.Context, kind model.Kind, id string) (model.Object, error)
}

// Writer creates and updates objects on an instance.
type Writer interface {
	// CreateObject creates an object and returns its new ID.
	CreateObject(ctx context.Context, kind model.Kind, payload map[string]any) (string, error)

	// UpdateObject applies payload to an existing object.
	UpdateObject(ctx context.Context, kind model.Kind, id string, payload map[string]any) error
}

// Client is the full Object Store Client.
type Client interface {
	Reader
	Writer
}

// maxPages bounds Drain against a server that never reports the last page.
const maxPages = 10000

// Drain reads every page of kind into one finite slice.
func Drain(ctx context.Context, r Reader, kind model.Kind, filter ListFilter) ([]model.Object, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	var out []model.Object
	for range maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.ListObjects(ctx, kind, filter)
		if err != nil {
			return nil, fmt.Errorf("list %s at offset %d: %w", kind.Plural(), filter.Offset, err)
		}
		out = append(out, page.Objects...)
		if !page.HasMore || (len(page.Objects) == 0 && page.NextOffset <= filter.Offset) {
			return out, nil
		}
		next := page.NextOffset
		if next <= filter.Offset {
			next = filter.Offset + len(page.Objects)
		}
		filter.Offset = next
	}
	return nil, fmt.Errorf("list %s: more than %d pages", kind.Plural(), maxPages)
}
