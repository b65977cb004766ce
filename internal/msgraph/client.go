package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// eventFields are the only event properties a sync reads.
var eventFields = []string{"id", "subject", "isAllDay", "isCancelled", "sensitivity", "showAs", "start", "end"}

// Client reads a user's calendar from Microsoft Graph.
type Client struct {
	hc      *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient returns a Client authorised by tok. Refreshed tokens are written
// back to path.
func NewClient(ctx context.Context, tok *oauth2.Token, cfg *oauth2.Config, path string) *Client {
	src := &savingTokenSource{src: cfg.TokenSource(ctx, tok), path: path, last: tok.AccessToken}
	return NewClientWithHTTP(oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), graphBaseURL)
}

// NewClientWithHTTP returns a Client that sends requests with hc to baseURL.
func NewClientWithHTTP(hc *http.Client, baseURL string) *Client {
	return &Client{
		hc:      hc,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  slog.Default().With(slog.String("component", "msgraph")),
	}
}

type savingTokenSource struct {
	src  oauth2.TokenSource
	path string
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken
	persist(slog.Default(), s.path, tok)
	return tok, nil
}

// DateTimeZone is Graph's dateTimeTimeZone: a wall-clock time without offset
// plus the zone it is expressed in.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// CalendarEvent is the subset of a Graph event used for importing.
type CalendarEvent struct {
	ID          string       `json:"id"`
	Subject     string       `json:"subject"`
	IsAllDay    bool         `json:"isAllDay"`
	IsCancelled bool         `json:"isCancelled"`
	Sensitivity string       `json:"sensitivity"` // normal, personal, private, confidential
	ShowAs      string       `json:"showAs"`      // free, tentative, busy, oof, workingElsewhere, unknown
	Start       DateTimeZone `json:"start"`
	End         DateTimeZone `json:"end"`
}

// GraphError is a non-200 answer from Graph.
type GraphError struct {
	Status  int
	Code    string
	Message string
}

func (e *GraphError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("graph API error %d (%s): %s", e.Status, e.Code, e.Message)
}

type calendarPage struct {
	Value    []CalendarEvent `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

// GetCalendarView returns the events overlapping [from, to), following
// @odata.nextLink until the last page. Event times are expressed in timezone
// (an IANA name), or UTC when it is empty.
func (c *Client) GetCalendarView(ctx context.Context, from, to time.Time, timezone string) ([]CalendarEvent, error) {
	q := url.Values{}
	q.Set("startDateTime", from.UTC().Format(time.RFC3339))
	q.Set("endDateTime", to.UTC().Format(time.RFC3339))
	q.Set("$select", strings.Join(eventFields, ","))
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", "100")
	next := c.baseURL + "/me/calendarView?" + q.Encode()

	var events []CalendarEvent
	for pages := 1; next != ""; pages++ {
		page, err := c.fetch(ctx, next, timezone)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Value...)
		c.logger.Debug("calendar page fetched", slog.Int("page", pages), slog.Int("events", len(page.Value)))
		next = page.NextLink
	}
	return events, nil
}

func (c *Client) fetch(ctx context.Context, endpoint, timezone string) (calendarPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return calendarPage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if timezone != "" {
		req.Header.Set("Prefer", fmt.Sprintf(`outlook.timezone="%s"`, timezone))
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return calendarPage{}, fmt.Errorf("graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return calendarPage{}, readGraphError(resp)
	}
	var page calendarPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return calendarPage{}, fmt.Errorf("decoding graph response: %w", err)
	}
	return page, nil
}

func readGraphError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	ge := &GraphError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		ge.Code, ge.Message = envelope.Error.Code, envelope.Error.Message
	}
	return ge
}
