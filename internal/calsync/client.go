package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"memocal/internal/models"
)

// DefaultListMax is used when List is called without a positive cap.
const DefaultListMax = 10

// Store is the remote calendar contract. Implementations issue one round trip
// per call and report failures as *SyncError where they can classify them.
type Store interface {
	Insert(ctx context.Context, calendarID string, r models.Reminder) (string, error)
	List(ctx context.Context, calendarID string, from time.Time, max int) ([]*models.Event, error)
	Delete(ctx context.Context, calendarID, eventID string) error
}

// Client shapes requests for a Store and normalizes its failures.
type Client struct {
	store      Store
	calendarID string
	location   *time.Location
	logger     *slog.Logger
}

// NewClient creates a Client bound to one calendar and one fixed timezone.
func NewClient(logger *slog.Logger, store Store, calendarID string, loc *time.Location) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("calendar store is required")
	}
	if calendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{store: store, calendarID: calendarID, location: loc, logger: logger}, nil
}

// Location returns the configured timezone.
func (c *Client) Location() *time.Location {
	return c.location
}

// Create inserts a point-in-time reminder and returns the store's event id.
// An empty summary or a missing start is rejected before any remote call.
func (c *Client) Create(ctx context.Context, r models.Reminder) (string, error) {
	r.Summary = strings.TrimSpace(r.Summary)
	if r.Summary == "" {
		return "", invalid(OpCreate, "summary is empty")
	}
	if r.Start.IsZero() {
		return "", invalid(OpCreate, "start time is missing")
	}
	if r.End.IsZero() {
		r.End = r.Start
	}
	if r.End.Before(r.Start) {
		return "", invalid(OpCreate, "end is before start")
	}
	if r.TimeZone == "" {
		r.TimeZone = c.location.String()
	}

	c.logger.Debug("Creating calendar event", "calendarID", c.calendarID, "summary", r.Summary, "start", r.Start)
	id, err := c.store.Insert(ctx, c.calendarID, r)
	if err != nil {
		return "", normalize(OpCreate, err)
	}

	c.logger.Info("Created calendar event", "id", id, "summary", r.Summary)
	return id, nil
}

// List returns upcoming events starting at or after from, ordered by start time.
func (c *Client) List(ctx context.Context, from time.Time, max int) ([]*models.Event, error) {
	if max <= 0 {
		max = DefaultListMax
	}
	if from.IsZero() {
		from = time.Now()
	}

	events, err := c.store.List(ctx, c.calendarID, from, max)
	if err != nil {
		return nil, normalize(OpList, err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	if len(events) > max {
		events = events[:max]
	}

	c.logger.Debug("Listed calendar events", "calendarID", c.calendarID, "count", len(events))
	return events, nil
}

// Delete removes an event by id. Unknown ids are reported as KindNotFound.
func (c *Client) Delete(ctx context.Context, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return invalid(OpDelete, "event id is empty")
	}

	if err := c.store.Delete(ctx, c.calendarID, eventID); err != nil {
		return normalize(OpDelete, err)
	}

	c.logger.Info("Deleted calendar event", "id", eventID)
	return nil
}
