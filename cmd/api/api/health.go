package api

import (
	"context"
	"time"

	"github.com/onkernel/workspace-companion/lib/oapi"
)

func (s *ApiService) Health(ctx context.Context, _ oapi.HealthRequestObject) (oapi.HealthResponseObject, error) {
	return oapi.Health200JSONResponse{
		Status:    "ok",
		Directory: s.store.Root(),
		Timestamp: time.Now().UTC(),
		Version:   s.opts.Version,
	}, nil
}
