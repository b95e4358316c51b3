// Copyright 2026 The QADeck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command migrate applies the embedded assignment schema to a PostgreSQL
// database. The connection string comes from the first argument or the
// DATABASE_URL environment variable.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qadeck/qadeck/internal/observability/logger"
	"github.com/qadeck/qadeck/internal/store/postgres"
)

func main() {
	logger.InitLogger(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: "text",
	})

	connStr := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		connStr = os.Args[1]
	}
	if connStr == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate <postgres-url> (or set DATABASE_URL)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, connStr); err != nil {
		slog.Error("migration failed", logger.Error(err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, connStr string) error {
	db, err := postgres.Open(ctx, connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		slog.Info("migration applied", logger.String("file", name))
	}
	slog.Info("schema up to date", slog.Int("migrations", len(applied)))
	return nil
}
