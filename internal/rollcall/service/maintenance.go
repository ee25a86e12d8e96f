package service

import (
	"context"
	"log/slog"
	"strings"
)

// MaintenanceService holds the admin device operations.
type MaintenanceService struct {
	registry *DeviceRegistry
	tracker  *DailyDeviceTracker
	logger   *slog.Logger
}

func NewMaintenanceService(reg *DeviceRegistry, tracker *DailyDeviceTracker, logger *slog.Logger) *MaintenanceService {
	return &MaintenanceService{registry: reg, tracker: tracker, logger: logger.With("component", "maintenance")}
}

// ClearDevice releases every registry entry bound to fp and evicts fp from
// the daily records. It reports whether anything was cleared.
func (m *MaintenanceService) ClearDevice(ctx context.Context, fp string) (bool, error) {
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return false, nil
	}
	students, err := m.registry.ClearByFingerprint(ctx, fp)
	if err != nil {
		return false, err
	}
	evicted, err := m.tracker.Evict(ctx, fp)
	if err != nil {
		return len(students) > 0, err
	}
	m.logger.Info("device cleared", "students", students, "daily_records", evicted)
	return len(students) > 0 || evicted > 0, nil
}
