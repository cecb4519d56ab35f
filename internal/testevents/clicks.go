package testevents

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/okian/casemap/internal/domain/choropleth"
	"github.com/okian/casemap/pkg/logger"
	geojson "github.com/paulmach/go.geojson"
)

// fetchAreas reads the painted feature collection.
func fetchAreas(ctx context.Context, config *Config, stats *Stats) ([]Area, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.BaseURL+"/map/areas", http.NoBody)
	if err != nil {
		return nil, err
	}
	client := newHTTPClient(config)
	resp, err := client.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var fc geojson.FeatureCollection
	if err := decodeJSON(resp.Body, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}
	areas := make([]Area, 0, len(fc.Features))
	for _, f := range fc.Features {
		areas = append(areas, areaOf(f))
	}
	stats.AreasPainted = len(areas)
	return areas, nil
}

func areaOf(f *geojson.Feature) Area {
	return Area{
		Name:        f.PropertyMustString(choropleth.PropName),
		ActiveCases: int(f.PropertyMustFloat64(choropleth.PropActiveCases)),
		TotalCases:  int(f.PropertyMustFloat64(choropleth.PropTotalCases)),
		Center:      boxCenter(f.Geometry),
	}
}

// boxCenter returns the centre of the outer ring's bounding box.
func boxCenter(g *geojson.Geometry) [2]float64 {
	var ring [][]float64
	switch {
	case g == nil:
		return [2]float64{}
	case g.IsPolygon() && len(g.Polygon) > 0:
		ring = g.Polygon[0]
	case g.IsMultiPolygon() && len(g.MultiPolygon) > 0 && len(g.MultiPolygon[0]) > 0:
		ring = g.MultiPolygon[0][0]
	}
	if len(ring) == 0 {
		return [2]float64{}
	}
	minX, minY, maxX, maxY := ring[0][0], ring[0][1], ring[0][0], ring[0][1]
	for _, p := range ring[1:] {
		minX, maxX = min(minX, p[0]), max(maxX, p[0])
		minY, maxY = min(minY, p[1]), max(maxY, p[1])
	}
	return [2]float64{(minX + maxX) / 2, (minY + maxY) / 2}
}

// clickAreas clicks up to config.Clicks areas concurrently.
func clickAreas(ctx context.Context, config *Config, areas []Area, stats *Stats) []ClickResult {
	n := min(config.Clicks, len(areas))
	logger.Get().Info(ctx, "clicking areas", logger.Int("clicks", n))

	client := newHTTPClient(config)
	url := config.BaseURL + "/map/click"
	results := make([]ClickResult, n)
	ok := make([]bool, n)

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexChan {
				area := areas[idx]
				var popup Popup
				_, err := client.Post(ctx, url, Click{
					LayerID:  choropleth.ExtrusionLayerID,
					AreaName: area.Name,
					Lng:      area.Center[0],
					Lat:      area.Center[1],
				}, &popup)
				if err != nil {
					if config.Verbose {
						logger.Get().Warn(ctx, "click failed", logger.String("area", area.Name), logger.Error(err))
					}
					continue
				}
				results[idx] = ClickResult{Area: area, Popup: popup}
				ok[idx] = true
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := 0; i < n; i++ {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()
	wg.Wait()

	resolved := make([]ClickResult, 0, n)
	for i, r := range results {
		if ok[i] {
			resolved = append(resolved, r)
		}
	}
	stats.ClicksResolved = len(resolved)
	return resolved
}
