// Package influx writes scan telemetry — one point per module touched
// during a scan, tagged by VIN and module id — to InfluxDB, for fleets
// that want a time-series view of DTC counts across many scan sessions.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"canscan/internal/appstate"
)

// Store writes scan telemetry points to one InfluxDB bucket.
type Store struct {
	client   influxdb2.Client
	org      string
	bucket   string
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
}

// Open connects to the InfluxDB instance at url and verifies reachability.
func Open(url, token, org, bucket string) (*Store, error) {
	client := influxdb2.NewClient(url, token)
	if _, err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("influx: failed to connect: %w", err)
	}
	return &Store{
		client:   client,
		org:      org,
		bucket:   bucket,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
	}, nil
}

// WriteModuleScan records one point per scanned module: its DTC count and
// status at the time the scan touched it.
func (s *Store) WriteModuleScan(vin string, module appstate.ModuleInfo, at time.Time) error {
	point := influxdb2.NewPoint(
		"module_scan",
		map[string]string{
			"vin":      vin,
			"moduleId": module.ID,
			"bus":      module.Bus,
		},
		map[string]interface{}{
			"status":   string(module.Status),
			"dtcCount": module.DtcCount,
		},
		at,
	)
	if err := s.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("influx: failed to write module scan point: %w", err)
	}
	return nil
}

// DtcCountAtPoint is one sample of a module's total DTC count over time.
type DtcCountAtPoint struct {
	Timestamp time.Time
	ModuleID  string
	DtcCount  int64
}

// QueryDtcHistory returns DTC count samples for vin within [start, end].
func (s *Store) QueryDtcHistory(vin string, start, end time.Time) ([]DtcCountAtPoint, error) {
	query := fmt.Sprintf(`
		from(bucket:"%s")
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r["_measurement"] == "module_scan" and r["vin"] == "%s" and r["_field"] == "dtcCount")
	`, s.bucket, start.Format(time.RFC3339), end.Format(time.RFC3339), vin)

	result, err := s.queryAPI.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("influx: failed to query dtc history: %w", err)
	}
	defer result.Close()

	var samples []DtcCountAtPoint
	for result.Next() {
		record := result.Record()
		count, _ := record.Value().(int64)
		samples = append(samples, DtcCountAtPoint{
			Timestamp: record.Time(),
			ModuleID:  fmt.Sprintf("%v", record.ValueByKey("moduleId")),
			DtcCount:  count,
		})
	}
	return samples, result.Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
