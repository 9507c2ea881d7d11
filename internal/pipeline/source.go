package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
)

// Router dispatches fetches to the source serving the site's API flavor.
type Router map[domain.APIFlavor]Source

// Fetch implements Source.
func (r Router) Fetch(ctx context.Context, site domain.SiteProfile, rng domain.DateRange) ([]domain.RawObservation, error) {
	src, ok := r[site.Flavor]
	if !ok {
		return nil, fmt.Errorf("no source for %s feeds", site.Flavor)
	}
	return src.Fetch(ctx, site, rng)
}
