package content

import "context"

// Repository is the content store contract spec.md §4.1 names. Create,
// UpdateWithHistory and RestoreVersion return the post-mutation Item;
// Delete and HardDelete return only an error.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Item, error)
	FindBySlug(ctx context.Context, typ Type, slug string) (*Item, error)
	FindByType(ctx context.Context, typ Type) ([]Item, error)
	FindPublished(ctx context.Context, typ *Type) ([]Item, error)
	FindAll(ctx context.Context, q ListQuery) ([]Item, error)

	SlugExists(ctx context.Context, typ Type, slug string, excludeID string) (bool, error)

	Create(ctx context.Context, in CreateInput, changedBy *string) (*Item, error)
	UpdateWithHistory(ctx context.Context, id string, in UpdateInput, changedBy *string) (*Item, error)
	Delete(ctx context.Context, id string, changedBy *string) error
	HardDelete(ctx context.Context, id string) error
	RestoreVersion(ctx context.Context, id string, version int, changedBy *string) (*Item, error)

	GetHistory(ctx context.Context, id string, limit, offset int) ([]History, error)
	GetBundle(ctx context.Context) (*Bundle, error)
}
