package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openpatch/autopatch-core/internal/patch"
	"github.com/openpatch/autopatch-core/internal/rig"
)

// Client implements patch.Telemetry: the state machine streams
// resistance, pressure, and state-change samples here during attempts.
// All writes are non-blocking; data is batched and sent asynchronously.
var _ patch.Telemetry = (*Client)(nil)

// RecordResistance writes a pipette resistance sample.
//
// Measurement: resistance, tagged by unit, field ohms.
func (c *Client) RecordResistance(unitID string, ohms float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"resistance",
		map[string]string{
			"unit_id": unitID,
		},
		map[string]interface{}{
			"ohms": ohms,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordPressure writes a pipette pressure sample.
//
// Measurement: pressure, tagged by unit and mode, field pascals.
func (c *Client) RecordPressure(unitID string, mode rig.PressureMode, pressurePa float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pressure",
		map[string]string{
			"unit_id": unitID,
			"mode":    string(mode),
		},
		map[string]interface{}{
			"pascals": pressurePa,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordStateChange writes a patch state transition.
//
// Measurement: patch_state, tagged by unit, field state. Stored as a
// string field so dashboards can annotate resistance traces with the
// state the machine was in.
func (c *Client) RecordStateChange(unitID string, state patch.State) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"patch_state",
		map[string]string{
			"unit_id": unitID,
		},
		map[string]interface{}{
			"state": string(state),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the telemetry helpers.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("rig_stats",
//	    map[string]string{"rig": "rig-01"},
//	    map[string]interface{}{"queue_depth": 12})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
