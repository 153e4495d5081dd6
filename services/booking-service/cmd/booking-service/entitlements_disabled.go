//go:build !protogen

package main

import (
	"context"
	"log/slog"
	"net/http"
)

// Without generated protobuf clients the entitlements debug route is not
// registered; booking enforcement still works from the local cache.
func setupEntitlementsRoutes(_ context.Context, _ *http.ServeMux, _ *slog.Logger) {}
