package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	audit "auditpipe/pkg/platform/audit"
)

// CSVHeader is the fixed column order of CSV exports.
var CSVHeader = []string{
	"id", "timestamp", "action", "outcome", "failure_reason",
	"actor_user_id", "actor_display_name", "actor_ip_address",
	"resource_type", "resource_id", "resource_name",
	"organization_id", "organization_name", "correlation_id",
}

// CSVWriter writes RFC 4180 CSV: a header row, then one row per event.
type CSVWriter struct {
	w             *csv.Writer
	headerWritten bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) WriteBatch(batch []audit.EventProjection) error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	for _, p := range batch {
		if err := c.w.Write(csvRecord(p)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) writeHeader() error {
	if c.headerWritten {
		return nil
	}
	c.headerWritten = true
	if err := c.w.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	return nil
}

func csvRecord(p audit.EventProjection) []string {
	return []string{
		p.ID,
		p.Timestamp.UTC().Format(time.RFC3339Nano),
		p.Action,
		p.Outcome,
		p.FailureReason,
		p.ActorUserID,
		p.ActorDisplayName,
		p.ActorIPAddress,
		p.ResourceType,
		p.ResourceID,
		p.ResourceName,
		p.OrganizationID,
		p.OrganizationName,
		p.CorrelationID,
	}
}
