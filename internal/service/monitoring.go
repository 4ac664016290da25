package service

import (
	"context"

	md "metering_dashboard"
	"metering_dashboard/internal/repository"
)

// MonitoringService exposes the read-only current-block view. It is also the
// pull-fetch collaborator behind BlockFetcher: no data yields a zero-valued
// Block, never an error.
type MonitoringService struct {
	blocks repository.BlockRepo
}

func NewMonitoringService(blocks repository.BlockRepo) *MonitoringService {
	return &MonitoringService{blocks: blocks}
}

func (s *MonitoringService) GetBlock(ctx context.Context, simulatorID string) (md.Block, error) {
	return s.blocks.Load(ctx, simulatorID)
}
