// Copyright (c) 2026 NerdHQ. All rights reserved.

// Package system exposes the operational surface of the service: the status
// snapshot and the migration endpoints.
package system

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerdhq/gatekeeper/internal/users/auth"
)

// StatusService assembles the service status snapshot from live database
// observations.
type StatusService struct {
	pool *pgxpool.Pool
}

// NewStatusService constructs a [StatusService].
func NewStatusService(pool *pgxpool.Pool) *StatusService {
	return &StatusService{pool: pool}
}

// Snapshot observes the database and returns the unredacted status resource.
// Redaction (the version field) happens in the projection, not here.
func (service *StatusService) Snapshot(ctx context.Context) (*auth.StatusSnapshot, error) {
	version, err := service.showSetting(ctx, "server_version")
	if err != nil {
		return nil, err
	}

	maxConnectionsValue, err := service.showSetting(ctx, "max_connections")
	if err != nil {
		return nil, err
	}
	maxConnections, err := strconv.Atoi(maxConnectionsValue)
	if err != nil {
		return nil, fmt.Errorf("status_max_connections_parse_failed: %w", err)
	}

	var openedConnections int
	const query = `SELECT count(*)::int FROM pg_stat_activity WHERE datname = current_database()`
	if err := service.pool.QueryRow(ctx, query).Scan(&openedConnections); err != nil {
		return nil, fmt.Errorf("status_opened_connections_failed: %w", err)
	}

	return &auth.StatusSnapshot{
		UpdatedAt: time.Now().UTC(),
		Dependencies: auth.StatusDependencies{
			Database: auth.DatabaseStatus{
				Version:           version,
				MaxConnections:    maxConnections,
				OpenedConnections: openedConnections,
			},
		},
	}, nil
}

func (service *StatusService) showSetting(ctx context.Context, name string) (string, error) {
	var value string
	if err := service.pool.QueryRow(ctx, "SHOW "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("status_show_%s_failed: %w", name, err)
	}
	return value, nil
}
