package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"memocal/internal/calsync"
	"memocal/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
)

// CalendarClient is a calsync.Store backed by the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient creates a Google Calendar client for a user account authorized with the 'auth' command.
// The accountName is used to find the token file token-<account>.json.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := TokenFile(accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	return NewClientWithOptions(ctx, logger, option.WithHTTPClient(config.Client(ctx, token)))
}

// NewServiceAccountClient creates a Google Calendar client authenticated with a service account key file.
func NewServiceAccountClient(ctx context.Context, logger *slog.Logger, keyFile string) (*CalendarClient, error) {
	b, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account file: %w", err)
	}

	return NewClientWithOptions(ctx, logger, option.WithCredentials(creds))
}

// NewClientWithOptions creates a client from an already-authenticated set of API options.
func NewClientWithOptions(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarClient{service: service, logger: logger}, nil
}

// Insert creates a timed event. A reminder key becomes the client-assigned
// event id, so inserting the same key twice fails with a conflict.
func (c *CalendarClient) Insert(ctx context.Context, calendarID string, r models.Reminder) (string, error) {
	event := &calendar.Event{
		Summary: r.Summary,
		Start: &calendar.EventDateTime{
			DateTime: r.Start.Format(time.RFC3339),
			TimeZone: r.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: r.End.Format(time.RFC3339),
			TimeZone: r.TimeZone,
		},
	}
	if r.Key != "" {
		event.Id = EventID(r.Key)
	}

	created, err := c.service.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", classify(calsync.OpCreate, err)
	}

	c.logger.Debug("Inserted Google Calendar event", "calendarID", calendarID, "id", created.Id, "link", created.HtmlLink)
	return created.Id, nil
}

// List fetches upcoming timed events from the specified calendar.
func (c *CalendarClient) List(ctx context.Context, calendarID string, from time.Time, max int) ([]*models.Event, error) {
	c.logger.Debug("Fetching upcoming events", "calendarID", calendarID, "from", from, "max", max)

	// TimeMin matches on end time, so a page can hold events that started before
	// from. Keep paging until max events survive the local filter.
	var (
		result    []*models.Event
		pageToken string
	)
	for {
		call := c.service.Events.List(calendarID).
			Context(ctx).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(from.Format(time.RFC3339)).
			MaxResults(int64(max)).
			OrderBy("startTime")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, classify(calsync.OpList, err)
		}

		c.logger.Debug("Fetched events from Google Calendar", "count", len(events.Items), "calendarID", calendarID)
		result = append(result, toInternalEvents(events.Items, from)...)
		if len(result) >= max || events.NextPageToken == "" {
			break
		}
		pageToken = events.NextPageToken
	}

	if len(result) > max {
		result = result[:max]
	}
	return result, nil
}

// Delete removes an event. Google answers 404 or 410 for unknown or already deleted events.
func (c *CalendarClient) Delete(ctx context.Context, calendarID, eventID string) error {
	if err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return classify(calsync.OpDelete, err)
	}
	return nil
}

// toInternalEvents converts Google Calendar events to the internal Event model.
// TimeMin matches on end time, so events that started before from are dropped here.
func toInternalEvents(googleEvents []*calendar.Event, from time.Time) []*models.Event {
	var internalEvents []*models.Event
	for _, item := range googleEvents {
		// Skip all-day events, they carry a date but no time
		if item.Start == nil || item.Start.DateTime == "" {
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil || startTime.Before(from) {
			continue
		}
		endTime := startTime
		if item.End != nil && item.End.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
				endTime = t
			}
		}

		internalEvents = append(internalEvents, &models.Event{
			ID:       item.Id,
			Summary:  item.Summary,
			Start:    startTime,
			End:      endTime,
			TimeZone: item.Start.TimeZone,
		})
	}
	return internalEvents
}

// EventID turns an idempotency key into a valid Google event id (base32hex characters only).
func EventID(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "-", ""))
}

// classify maps Google API failures onto calsync error kinds.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return calsync.NewError(op, kindForStatus(gerr), err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return calsync.NewError(op, calsync.KindNetwork, err)
	}
	return calsync.NewError(op, calsync.KindRemote, err)
}

func kindForStatus(gerr *googleapi.Error) calsync.Kind {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return calsync.KindQuota
		}
	}

	switch gerr.Code {
	case http.StatusNotFound, http.StatusGone:
		return calsync.KindNotFound
	case http.StatusConflict:
		return calsync.KindConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return calsync.KindAuth
	case http.StatusTooManyRequests:
		return calsync.KindQuota
	}
	return calsync.KindRemote
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes explicit client credentials over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide MEMOCAL_GOOGLE_CLIENT_ID and MEMOCAL_GOOGLE_CLIENT_SECRET or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// TokenFile returns the token file name for an account.
func TokenFile(accountName string) string {
	return fmt.Sprintf("token-%s.json", accountName)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// DiscoverCalendars lists the ids and names of calendars the account can write to.
func (c *CalendarClient) DiscoverCalendars(ctx context.Context) (map[string]string, error) {
	list, err := c.service.CalendarList.List().MinAccessRole("writer").Context(ctx).Do()
	if err != nil {
		return nil, classify(calsync.OpList, err)
	}

	calendars := make(map[string]string, len(list.Items))
	for _, item := range list.Items {
		calendars[item.Id] = item.Summary
	}
	return calendars, nil
}

// GetTokenAccounts lists the account names with a saved token in dir.
func GetTokenAccounts(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
