package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vizor/fleethealth/pkg/storage"
	"github.com/vizor/fleethealth/pkg/types"
)

// Load reads every report document in b and assembles a Snapshot. Both the
// per-company and the consolidated layouts are understood. It returns the
// number of documents read.
func Load(ctx context.Context, b storage.Bucket) (types.Snapshot, int, error) {
	keys, err := storage.ListAll(ctx, b, "", func(k string) bool { return strings.HasSuffix(k, ".json") })
	if err != nil {
		return types.Snapshot{}, 0, fmt.Errorf("store: list reports: %w", err)
	}

	var snap types.Snapshot
	companies := make(map[string]*types.CompanyReport)
	company := func(segment string) *types.CompanyReport {
		c, ok := companies[segment]
		if !ok {
			c = &types.CompanyReport{Company: types.SegmentID(segment), Batches: []types.BatchReport{}}
			companies[segment] = c
		}
		return c
	}

	read := 0
	for _, key := range keys {
		segment, _, _ := strings.Cut(key, "/")
		var err error
		switch {
		case key == types.GlobalDashboardKey:
			err = decode(ctx, b, key, &snap.Global)
		case types.IsDashboardKey(key):
			err = decode(ctx, b, key, &company(segment).Dashboard)
		case types.IsBatchKey(key):
			var br types.BatchReport
			if err = decode(ctx, b, key, &br); err == nil {
				c := company(segment)
				c.Batches = append(c.Batches, br)
				if br.Company != "" {
					c.Company = br.Company
				}
			}
		case types.IsConsolidatedKey(key):
			var cr types.CompanyReport
			if err = decode(ctx, b, key, &cr); err == nil {
				c := company(segment)
				c.Dashboard = cr.Dashboard
				c.Batches = append(c.Batches, cr.Batches...)
				if cr.Company != "" {
					c.Company = cr.Company
				}
			}
		default:
			continue
		}
		if err != nil {
			return types.Snapshot{}, 0, err
		}
		read++
	}

	snap.Companies = make([]types.CompanyReport, 0, len(companies))
	for _, c := range companies {
		sort.Slice(c.Batches, func(i, j int) bool { return c.Batches[i].BatchID < c.Batches[j].BatchID })
		snap.Companies = append(snap.Companies, *c)
	}
	sort.Slice(snap.Companies, func(i, j int) bool { return snap.Companies[i].Company < snap.Companies[j].Company })
	return snap, read, nil
}

func decode(ctx context.Context, b storage.Bucket, key string, v any) error {
	data, err := b.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("store: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}
