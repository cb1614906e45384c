package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementProperty holds sampled BACnet property values.
	MeasurementProperty = "bacnet_property"

	// MeasurementTaskRun holds one point per finished workflow run.
	MeasurementTaskRun = "task_run"
)

// WritePropertySample records one numeric property value read from a
// device. Tags are site, device, object and property; the field is value.
//
//	client.WritePropertySample("Main", "100", "AV1", "present-value", 21.5, time.Now())
func (c *Client) WritePropertySample(site, device, objectID, property string, value float64, ts time.Time) {
	c.writePoint(propertyPoint(site, device, objectID, property, value, ts))
}

// WriteTaskRun records a finished workflow: tags kind and status, fields
// duration_seconds and attempts.
func (c *Client) WriteTaskRun(kind, status string, attempts int, duration time.Duration, ts time.Time) {
	c.writePoint(taskRunPoint(kind, status, attempts, duration, ts))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func propertyPoint(site, device, objectID, property string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementProperty,
		map[string]string{
			"site":     site,
			"device":   device,
			"object":   objectID,
			"property": property,
		},
		map[string]any{"value": value},
		ts,
	)
}

func taskRunPoint(kind, status string, attempts int, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTaskRun,
		map[string]string{
			"kind":   kind,
			"status": status,
		},
		map[string]any{
			"duration_seconds": duration.Seconds(),
			"attempts":         attempts,
		},
		ts,
	)
}
