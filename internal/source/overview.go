package source

import (
	"context"
	"fmt"

	"go.brokerconsole.dev/internal/broker"
	"go.brokerconsole.dev/internal/feed"
)

// OverviewClient fetches the broker monitoring overview.
type OverviewClient interface {
	MainOverview(ctx context.Context) (*broker.Overview, error)
}

// OverviewSource polls the broker's main overview endpoint.
type OverviewSource struct {
	client OverviewClient
}

// NewOverviewSource creates a source backed by the broker API.
func NewOverviewSource(client OverviewClient) *OverviewSource {
	return &OverviewSource{client: client}
}

// Name implements feed.Source.
func (s *OverviewSource) Name() string { return "broker-api" }

// Fetch implements feed.Source.
func (s *OverviewSource) Fetch(ctx context.Context) (feed.Snapshot, error) {
	overview, err := s.client.MainOverview(ctx)
	if err != nil {
		return feed.Snapshot{}, fmt.Errorf("failed to fetch overview: %w", err)
	}
	return DecodeSnapshot(overview.BrokersThroughput)
}
