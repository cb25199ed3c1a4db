package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteFilterPoint writes one filter pipeline emission to InfluxDB.
//
// Each emission produces one point per aggregator, so a pipeline with
// four aggregators writes four points per window emission. The write
// is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - pipeline: Filter pipeline name (e.g., "greenhouse_temp")
//   - aggregator: Aggregator name (e.g., "min", "moving_average")
//   - value: The aggregated value
//   - timestamp: When the emission fired
//
// Example:
//
//	client.WriteFilterPoint("greenhouse_temp", "median", 21.5, time.Now())
func (c *Client) WriteFilterPoint(pipeline string, aggregator string, value float64, timestamp time.Time) {
	c.WritePointWithTime("filter_output",
		map[string]string{
			"pipeline":   pipeline,
			"aggregator": aggregator,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)
}

// WriteRunMetric writes a script run duration measurement.
//
// Used for tracking execution time and failure rates per script.
//
// Parameters:
//   - script: Script name
//   - status: Terminal run status ("completed", "failed", "cancelled")
//   - durationMS: Run duration in milliseconds
func (c *Client) WriteRunMetric(script string, status string, durationMS float64) {
	c.WritePoint("script_runs",
		map[string]string{
			"script": script,
			"status": status,
		},
		map[string]interface{}{
			"duration_ms": durationMS,
		},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
