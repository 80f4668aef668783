package icloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"memocal/internal/calsync"
	"memocal/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const (
	// DefaultEndpoint is the iCloud CalDAV endpoint.
	DefaultEndpoint = "https://caldav.icloud.com/"
	productID       = "-//memocal//EN"

	// listHorizon bounds the calendar-query time range; some servers reject open-ended ranges.
	listHorizon = 10 * 365 * 24 * time.Hour
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "memocal/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient is a calsync.Store for a CalDAV server (iCloud by default).
// Calendar ids are calendar display names, resolved to collection paths on first use.
type CalDAVClient struct {
	caldavClient *caldav.Client
	httpClient   *http.Client
	endpoint     *url.URL
	logger       *slog.Logger

	mu    sync.Mutex
	paths map[string]string
}

// NewClient creates a CalDAVClient. An empty endpoint selects iCloud.
func NewClient(logger *slog.Logger, endpoint, username, password string) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav endpoint %q: %w", endpoint, err)
	}

	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 30 * time.Second}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &CalDAVClient{
		caldavClient: caldavClient,
		httpClient:   httpClient,
		endpoint:     u,
		logger:       logger,
		paths:        make(map[string]string),
	}, nil
}

// Insert writes the reminder as <uid>.ics. The reminder key is used as UID,
// so repeating an insert with the same key overwrites instead of duplicating.
func (c *CalDAVClient) Insert(ctx context.Context, calendarID string, r models.Reminder) (string, error) {
	calPath, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return "", err
	}

	uid := r.Key
	if uid == "" {
		uid = GenerateUID()
	}
	eventPath := path.Join(calPath, uid+".ics")
	c.logger.Debug("Writing event to CalDAV", "path", eventPath, "summary", r.Summary)

	var body bytes.Buffer
	if err := ical.NewEncoder(&body).Encode(newCalendar(toICal(uid, r))); err != nil {
		return "", calsync.NewError(calsync.OpCreate, calsync.KindRemote, fmt.Errorf("failed to encode event to iCal format: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resolve(eventPath), &body)
	if err != nil {
		return "", calsync.NewError(calsync.OpCreate, calsync.KindRemote, err)
	}
	req.Header.Set("Content-Type", ical.MIMEType)
	if err := c.do(calsync.OpCreate, req); err != nil {
		return "", err
	}

	return uid, nil
}

// List runs a calendar-query for VEVENTs starting at or after from.
func (c *CalDAVClient) List(ctx context.Context, calendarID string, from time.Time, max int) ([]*models.Event, error) {
	calPath, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:  ical.CompEvent,
				Props: []string{ical.PropUID, ical.PropSummary, ical.PropDateTimeStart, ical.PropDateTimeEnd},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent, Start: from.UTC(), End: from.Add(listHorizon).UTC()}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, calsync.NewError(calsync.OpList, calsync.KindRemote, fmt.Errorf("calendar query failed: %w", err))
	}

	events := fromCalendarObjects(objects, from)
	if max > 0 && len(events) > max {
		events = events[:max]
	}
	return events, nil
}

// Delete removes <eventID>.ics. Event ids are resource names, as returned by Insert and List.
func (c *CalDAVClient) Delete(ctx context.Context, calendarID, eventID string) error {
	calPath, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.resolve(path.Join(calPath, eventID+".ics")), nil)
	if err != nil {
		return calsync.NewError(calsync.OpDelete, calsync.KindRemote, err)
	}
	if err := c.do(calsync.OpDelete, req); err != nil {
		if calsync.IsKind(err, calsync.KindNotFound) {
			return calsync.NewError(calsync.OpDelete, calsync.KindNotFound, fmt.Errorf("event %s", eventID))
		}
		return err
	}
	return nil
}

func (c *CalDAVClient) resolve(p string) string {
	return c.endpoint.ResolveReference(&url.URL{Path: p}).String()
}

// do sends a plain WebDAV request and classifies the response status.
func (c *CalDAVClient) do(op string, req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return calsync.NewError(op, calsync.KindNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return calsync.NewError(op, kindForStatus(resp.StatusCode), fmt.Errorf("status %s", resp.Status))
}

func kindForStatus(code int) calsync.Kind {
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return calsync.KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return calsync.KindAuth
	case http.StatusTooManyRequests:
		return calsync.KindQuota
	case http.StatusPreconditionFailed, http.StatusConflict:
		return calsync.KindConflict
	}
	return calsync.KindRemote
}

func newCalendar(children ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, children...)
	return cal
}

// toICal converts a reminder to a VEVENT. Times keep their location, which
// go-ical writes as a TZID parameter.
func toICal(uid string, r models.Reminder) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, r.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, r.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, r.End)
	return ve
}

// fromCalendarObjects flattens query results into events sorted by start.
func fromCalendarObjects(objects []caldav.CalendarObject, from time.Time) []*models.Event {
	var events []*models.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			event, ok := parseEvent(comp)
			if !ok || event.Start.Before(from) {
				continue
			}
			// The resource name, not the UID, is what Delete addresses.
			event.ID = strings.TrimSuffix(path.Base(obj.Path), ".ics")
			events = append(events, event)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events
}

func parseEvent(comp *ical.Component) (*models.Event, bool) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, false
	}
	// DateTime honours a TZID parameter itself; floating times fall back to UTC.
	start, err := startProp.DateTime(time.UTC)
	if err != nil {
		return nil, false
	}
	end := start
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if t, err := endProp.DateTime(time.UTC); err == nil {
			end = t
		}
	}

	summary, _ := comp.Props.Text(ical.PropSummary)
	tzid := startProp.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		tzid = "UTC"
	}
	return &models.Event{Summary: summary, Start: start, End: end, TimeZone: tzid}, true
}

// calendarPath resolves a calendar display name to its collection path.
func (c *CalDAVClient) calendarPath(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.paths[name]; ok {
		return p, nil
	}

	p, err := c.findCalendar(ctx, name)
	if err != nil {
		return "", calsync.NewError("", calsync.KindRemote, err)
	}
	c.logger.Info("Found CalDAV calendar", "calendarName", name, "path", p)
	c.paths[name] = p
	return p, nil
}

// findCalendar discovers the user's calendars and returns the path for the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
