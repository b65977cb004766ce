// Package client implements storage.Store against a qt server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

// Store talks to the /api/v1 endpoints of a qt server. The user is taken
// from the bearer token, or from userID when the server runs without auth.
type Store struct {
	base       string
	userID     string
	httpClient *http.Client
}

var _ storage.Store = (*Store)(nil)

// New returns a Store for the server at baseURL. An empty token sends no
// Authorization header.
func New(ctx context.Context, baseURL, token, userID string) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	hc := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
		hc.Timeout = 30 * time.Second
	}
	return &Store{
		base:       strings.TrimRight(baseURL, "/") + "/api/v1",
		userID:     userID,
		httpClient: hc,
	}, nil
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends in as JSON and decodes the data field of the response into out.
func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.userID != "" {
		req.Header.Set("X-User-ID", s.userID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var env struct {
			Error *apiError `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &env) == nil && env.Error != nil {
			msg = env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusConflict:
			return fmt.Errorf("%s: %w", msg, storage.ErrDuplicate)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", msg, storage.ErrNotFound)
		default:
			return fmt.Errorf("server error %d: %s", resp.StatusCode, msg)
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (s *Store) SelectSlots(ctx context.Context, q storage.SlotQuery) ([]model.TimeSlot, error) {
	v := url.Values{}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.From != "" {
		v.Set("from", q.From)
	}
	if q.To != "" {
		v.Set("to", q.To)
	}
	path := "/slots"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []model.TimeSlot
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) InsertSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	var out []model.TimeSlot
	if err := s.do(ctx, http.MethodPost, "/slots", slots, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateSlot(ctx context.Context, id string, patch storage.SlotPatch) (model.TimeSlot, error) {
	var out model.TimeSlot
	err := s.do(ctx, http.MethodPatch, "/slots/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (s *Store) DeleteSlots(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	v := url.Values{"id": ids}
	return s.do(ctx, http.MethodDelete, "/slots?"+v.Encode(), nil, nil)
}

func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	if err := s.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) InsertProject(ctx context.Context, p model.Project) (model.Project, error) {
	var out model.Project
	err := s.do(ctx, http.MethodPost, "/projects", p, &out)
	return out, err
}

func (s *Store) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	var out model.Project
	err := s.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(p.ID), p, &out)
	return out, err
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

func (s *Store) GetSettings(ctx context.Context) (model.UserSettings, error) {
	var out model.UserSettings
	err := s.do(ctx, http.MethodGet, "/settings", nil, &out)
	return out, err
}

func (s *Store) InsertSettings(ctx context.Context, settings model.UserSettings) (model.UserSettings, error) {
	var out model.UserSettings
	err := s.do(ctx, http.MethodPost, "/settings", settings, &out)
	return out, err
}

func (s *Store) UpdateSettings(ctx context.Context, id string, patch storage.SettingsPatch) (model.UserSettings, error) {
	var out model.UserSettings
	err := s.do(ctx, http.MethodPatch, "/settings/"+url.PathEscape(id), patch, &out)
	return out, err
}
