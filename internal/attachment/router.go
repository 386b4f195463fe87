package attachment

import (
	"context"
	"fmt"
	"strings"
)

// Router writes to one primary store and loads from whichever store a
// reference belongs to, so campaigns created before a storage switch keep
// working.
type Router struct {
	primary Store
	local   Store
	s3      Store
}

// NewRouter returns a Router. s3 may be nil when no bucket is configured.
func NewRouter(primary Store, local, s3 Store) *Router {
	return &Router{primary: primary, local: local, s3: s3}
}

func (r *Router) Put(ctx context.Context, ownerID, filename, contentType string, data []byte) (string, error) {
	return r.primary.Put(ctx, ownerID, filename, contentType, data)
}

func (r *Router) Load(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "s3://") {
		if r.s3 == nil {
			return nil, fmt.Errorf("s3 reference %s but no s3 store configured", ref)
		}
		return r.s3.Load(ctx, ref)
	}
	if r.local == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return r.local.Load(ctx, ref)
}
