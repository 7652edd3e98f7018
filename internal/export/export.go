// Package export builds, writes and reads the published JSON documents that
// the chart renderers and the notifier consume.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yourorg/stablecoin-prime-rate/internal/integrity"
	"github.com/yourorg/stablecoin-prime-rate/internal/model"
)

// Published file names inside the data directory.
const (
	DataFileName     = "pool_data.json"
	MetadataFileName = "pool_metadata.json"
)

// Keys of the per-date scalar fields in the data document.
const (
	keyWeightedAPY = "weighted_apy"
	keyMA14d       = "ma_apy_14d"
	apyPrefix      = "apy_"
	tvlPrefix      = "tvlUsd_"
)

// ErrNoDocument signals that a published document is absent or empty.
var ErrNoDocument = errors.New("export: no document")

// Point is one (date, named pool) observation destined for the data document.
// Name is the pool's published display key (e.g. "Pool_0").
type Point struct {
	Date   string
	Name   string
	APY    float64
	TVLUsd float64
}

// DataDocument is the historical per-date export. Each date maps pool field
// keys of the form apy_<name> / tvlUsd_<name> plus the scalar weighted_apy
// and ma_apy_14d for that date.
type DataDocument struct {
	PoolData    map[string]map[string]float64 `json:"pool_data"`
	LastUpdated string                        `json:"last_updated"`
}

// MetadataDocument is the current per-pool metadata export.
type MetadataDocument struct {
	PoolMetadata []model.PoolMeta `json:"pool_metadata"`
	LastUpdated  string           `json:"last_updated"`
}

// BuildDataDocument assembles the data document from long-form points and the
// computed daily rate series.
func BuildDataDocument(points []Point, rates []model.RatePoint) DataDocument {
	doc := DataDocument{
		PoolData:    make(map[string]map[string]float64),
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	row := func(date string) map[string]float64 {
		r, ok := doc.PoolData[date]
		if !ok {
			r = make(map[string]float64)
			doc.PoolData[date] = r
		}
		return r
	}
	for _, p := range points {
		r := row(p.Date)
		r[apyPrefix+p.Name] = p.APY
		r[tvlPrefix+p.Name] = p.TVLUsd
	}
	for _, rp := range rates {
		r := row(rp.Date)
		r[keyWeightedAPY] = rp.WeightedAPY
		r[keyMA14d] = rp.MAAPY14d
	}
	return doc
}

// BuildMetadataDocument assembles the metadata document.
func BuildMetadataDocument(meta []model.PoolMeta) MetadataDocument {
	return MetadataDocument{
		PoolMetadata: meta,
		LastUpdated:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Dates returns the document's dates in ascending order.
func (d DataDocument) Dates() []string {
	dates := make([]string, 0, len(d.PoolData))
	for date := range d.PoolData {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// Rates extracts the daily rate series in date order.
func (d DataDocument) Rates() []model.RatePoint {
	dates := d.Dates()
	rates := make([]model.RatePoint, 0, len(dates))
	for _, date := range dates {
		row := d.PoolData[date]
		rates = append(rates, model.RatePoint{
			Date:        date,
			WeightedAPY: row[keyWeightedAPY],
			MAAPY14d:    row[keyMA14d],
		})
	}
	return rates
}

// Snapshots reconstructs the dated snapshot set from the wide per-date rows,
// enriching each pool with grouping keys from the metadata document when the
// published names match.
func (d DataDocument) Snapshots(meta []model.PoolMeta) model.DatedSnapshots {
	byName := make(map[string]model.PoolMeta, len(meta))
	for _, m := range meta {
		byName[m.Name] = m
	}

	snaps := make(model.DatedSnapshots, len(d.PoolData))
	for date, row := range d.PoolData {
		names := make([]string, 0, len(row))
		for key := range row {
			if strings.HasPrefix(key, apyPrefix) {
				names = append(names, strings.TrimPrefix(key, apyPrefix))
			}
		}
		sort.Strings(names)

		pools := make([]model.PoolSnapshot, 0, len(names))
		for _, name := range names {
			snap := model.PoolSnapshot{
				PoolID: name,
				APY:    row[apyPrefix+name],
				TVL:    row[tvlPrefix+name],
			}
			if m, ok := byName[name]; ok {
				snap.Chain = m.Chain
				snap.Project = m.Project
				snap.Symbol = m.Symbol
			}
			pools = append(pools, snap)
		}
		snaps[date] = pools
	}
	return snaps
}

// Write atomically serializes v to path (temp file plus rename).
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating data directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error publishing %s: %w", path, err)
	}
	return nil
}

// LoadDataDocument reads a published data document. Documents wrapped by the
// integrity layer are verified and transparently unwrapped.
func LoadDataDocument(path string) (DataDocument, error) {
	var doc DataDocument
	raw, err := readPayload(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if len(doc.PoolData) == 0 {
		return doc, ErrNoDocument
	}
	return doc, nil
}

// LoadMetadataDocument reads a published metadata document.
func LoadMetadataDocument(path string) (MetadataDocument, error) {
	var doc MetadataDocument
	raw, err := readPayload(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if len(doc.PoolMetadata) == 0 {
		return doc, ErrNoDocument
	}
	return doc, nil
}

// readPayload loads a file and peels one integrity wrapper if present. A
// wrapper that fails verification is rejected rather than unwrapped.
func readPayload(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDocument, path)
		}
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	var wrapper integrity.Wrapper
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Payload) > 0 {
		if err := integrity.Verify(wrapper); err != nil {
			return nil, fmt.Errorf("integrity check failed for %s: %w", path, err)
		}
		return wrapper.Payload, nil
	}
	return data, nil
}
