package cube

import (
	"context"

	"github.com/arx-os/datakernel-cube/internal/schema"
)

// ResolverCapability advertises what an AttributeResolver can answer:
// which dimensions it needs as a lookup key, and the type of each
// attribute it can resolve.
type ResolverCapability struct {
	KeyDims    []string
	Attributes map[string]*schema.FieldType
}

// AttributeResolver resolves attributes that are not cube dimensions from
// an external source (spec.md §6). Resolve is always asynchronous from the
// core's view: it may be a blocking store, and the caller passes a
// context it can cancel.
type AttributeResolver interface {
	Capability() ResolverCapability
	Resolve(ctx context.Context, keys []string, keyValues [][]any) ([]map[string]any, error)
}
