package geo

import (
	"context"
	"fmt"
	"io/ioutil"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/resq-app/resq-backend/internal/logging"
)

// Dataset property keys.
const (
	PropDescription  = "AED_LOCATION_DESCRIPTION"
	PropFloorLevel   = "AED_LOCATION_FLOOR_LEVEL"
	PropBuildingName = "BUILDING_NAME"
	PropRoadName     = "ROAD_NAME"
	PropHouseNumber  = "HOUSE_NUMBER"
	PropID           = "AED_ID"
)

const (
	defaultDescription = "No description available"
	defaultFloorLevel  = "N/A"
)

// Record is one AED location. Immutable after load.
type Record struct {
	ID           *string `json:"aedId"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Description  string  `json:"description"`
	FloorLevel   string  `json:"floorLevel"`
	BuildingName *string `json:"buildingName"`
	RoadName     *string `json:"roadName"`
	HouseNumber  *string `json:"houseNumber"`
}

// Source provides the raw dataset.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads the dataset from disk.
type FileSource struct {
	Path string
}

// Read Reads the whole file.
func (f FileSource) Read(_ context.Context) ([]byte, error) {
	return ioutil.ReadFile(f.Path)
}

// BytesSource serves an in-memory dataset.
type BytesSource []byte

// Read Returns the bytes.
func (b BytesSource) Read(_ context.Context) ([]byte, error) {
	return b, nil
}

// Index holds the AED records, loaded once on first use and shared read-only afterwards.
type Index struct {
	source  Source
	once    sync.Once
	records []Record
}

// NewIndex creates an index over source. Nothing is read until Load.
func NewIndex(source Source) *Index {
	return &Index{source: source}
}

// Load returns the records, reading and parsing the dataset on the first call only. A broken or missing
// dataset yields an empty index.
func (i *Index) Load(ctx context.Context) []Record {
	i.once.Do(func() {
		logger := logging.FromContext(ctx).Named("geo.Index.Load")

		if i.source == nil {
			logger.Warn("No AED dataset source configured")
			return
		}

		data, err := i.source.Read(ctx)
		if err != nil {
			logger.Errorf("Failed to read AED dataset: %v", err)
			return
		}

		records, err := parse(ctx, data)
		if err != nil {
			logger.Errorf("Failed to parse AED dataset: %v", err)
			return
		}

		i.records = records
		logger.Infof("Loaded %d AED locations", len(records))
	})

	return i.records
}

func parse(ctx context.Context, data []byte) ([]Record, error) {
	logger := logging.FromContext(ctx).Named("geo.parse")

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(fc.Features))
	for n, feature := range fc.Features {
		point, ok := feature.Geometry.(orb.Point)
		if !ok {
			logger.Warnf("Skipping feature %d: geometry %T is not a point", n, feature.Geometry)
			continue
		}

		props := feature.Properties
		records = append(records, Record{
			ID:           optional(props, PropID),
			Longitude:    point.Lon(),
			Latitude:     point.Lat(),
			Description:  withDefault(props, PropDescription, defaultDescription),
			FloorLevel:   withDefault(props, PropFloorLevel, defaultFloorLevel),
			BuildingName: optional(props, PropBuildingName),
			RoadName:     optional(props, PropRoadName),
			HouseNumber:  optional(props, PropHouseNumber),
		})
	}

	return records, nil
}

func optional(props geojson.Properties, key string) *string {
	v, ok := props[key]
	if !ok || v == nil {
		return nil
	}

	var s string
	switch value := v.(type) {
	case string:
		s = value
	case float64:
		s = strconv.FormatFloat(value, 'f', -1, 64)
	default:
		s = fmt.Sprint(value)
	}

	if s == "" {
		return nil
	}
	return &s
}

func withDefault(props geojson.Properties, key, def string) string {
	if s := optional(props, key); s != nil {
		return *s
	}
	return def
}
