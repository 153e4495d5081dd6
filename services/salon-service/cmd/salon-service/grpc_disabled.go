//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/salonflowhq/salonflow/libs/db"
	"github.com/salonflowhq/salonflow/services/salon-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *db.Pool, _ *storage.Repository) error {
	return nil
}
