// Package projects keeps the user's project list in memory and applies
// changes to it optimistically.
package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// Validation and lookup errors.
var (
	ErrInvalidName   = errors.New("project name must not be blank")
	ErrInvalidColor  = errors.New("project color must look like #rrggbb")
	ErrDuplicateName = errors.New("a project with that name already exists")
	ErrUnknown       = errors.New("no such project")
	ErrBusy          = errors.New("project has a pending change")
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Notifier surfaces non-fatal messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Info(string)  {}
func (nopNotifier) Error(string) {}

// Service owns the local project list. It is safe for concurrent use.
type Service struct {
	remote   storage.ProjectStore
	logger   *slog.Logger
	notifier Notifier
	newID    func() string

	mu       sync.RWMutex
	projects []model.Project
	pending  map[string]bool
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where user-facing messages go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator overrides how temporary ids are generated.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// New returns an empty Service backed by remote. Call Load to fill it.
func New(remote storage.ProjectStore, opts ...Option) *Service {
	s := &Service{
		remote:   remote,
		notifier: nopNotifier{},
		newID:    func() string { return "tmp-" + timecalc.GenerateID(time.Now()) },
		pending:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "projects"))
	return s
}

// Load replaces the local list with the remote one. On failure the previous
// list is kept.
func (s *Service) Load(ctx context.Context) error {
	list, err := s.remote.ListProjects(ctx)
	if err != nil {
		s.logger.Error("load projects", slog.Any("error", err))
		s.notifier.Error("Failed to load projects")
		return fmt.Errorf("load projects: %w", err)
	}
	s.mu.Lock()
	s.projects = append([]model.Project(nil), list...)
	sortByName(s.projects)
	s.mu.Unlock()
	return nil
}

// All returns every project ordered by name.
func (s *Service) All() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Project(nil), s.projects...)
}

// Active returns the projects that are not archived.
func (s *Service) Active() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Project
	for _, p := range s.projects {
		if !p.Archived {
			out = append(out, p)
		}
	}
	return out
}

// ByID looks a project up by id.
func (s *Service) ByID(id string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return model.Project{}, false
	}
	return s.projects[i], true
}

// ByName looks a project up by name, ignoring case.
func (s *Service) ByName(name string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name = strings.TrimSpace(name)
	for _, p := range s.projects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.Project{}, false
}

// Resolve finds a project by id, then by name.
func (s *Service) Resolve(ref string) (model.Project, error) {
	if p, ok := s.ByID(ref); ok {
		return p, nil
	}
	if p, ok := s.ByName(ref); ok {
		return p, nil
	}
	return model.Project{}, fmt.Errorf("%w: %q", ErrUnknown, ref)
}

// Add creates a project. It is visible locally under a temporary id until the
// remote store confirms it.
func (s *Service) Add(ctx context.Context, name, color string) (model.Project, error) {
	name, color, err := normalize(name, color)
	if err != nil {
		return model.Project{}, err
	}

	s.mu.Lock()
	if s.nameTaken(name, "") {
		s.mu.Unlock()
		return model.Project{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	temp := model.Project{ID: s.newID(), Name: name, Color: color}
	s.projects = append(s.projects, temp)
	sortByName(s.projects)
	s.pending[temp.ID] = true
	s.mu.Unlock()

	created, err := s.remote.InsertProject(ctx, model.Project{Name: name, Color: color})

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, temp.ID)
	i := s.index(temp.ID)
	if err != nil {
		if i >= 0 {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
		}
		return model.Project{}, s.failed("create", name, err)
	}
	if i >= 0 {
		s.projects[i] = created
	} else {
		s.projects = append(s.projects, created)
	}
	sortByName(s.projects)
	s.logger.Info("project created", slog.String("project_id", created.ID), slog.String("name", created.Name))
	s.notifier.Info("Project created")
	return created, nil
}

// Update renames and recolors a project.
func (s *Service) Update(ctx context.Context, id, name, color string) (model.Project, error) {
	name, color, err := normalize(name, color)
	if err != nil {
		return model.Project{}, err
	}
	return s.change(ctx, "update", id, func(p model.Project) (model.Project, error) {
		if s.nameTaken(name, id) {
			return p, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		p.Name = name
		p.Color = color
		return p, nil
	})
}

// ToggleArchive flips the archived flag of a project.
func (s *Service) ToggleArchive(ctx context.Context, id string) (model.Project, error) {
	return s.change(ctx, "archive", id, func(p model.Project) (model.Project, error) {
		p.Archived = !p.Archived
		return p, nil
	})
}

// Delete removes a project. The remote store deletes its slots with it.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i, err := s.claim(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	before := s.projects[i]
	s.projects = append(s.projects[:i], s.projects[i+1:]...)
	s.mu.Unlock()

	err = s.remote.DeleteProject(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	if err != nil {
		if s.index(id) < 0 {
			s.projects = append(s.projects, before)
			sortByName(s.projects)
		}
		return s.failed("delete", before.Name, err)
	}
	s.logger.Info("project deleted", slog.String("project_id", id), slog.String("name", before.Name))
	s.notifier.Info("Project deleted")
	return nil
}

// change applies edit locally, sends the result to the remote store and
// restores the previous record if that fails.
func (s *Service) change(ctx context.Context, op, id string, edit func(model.Project) (model.Project, error)) (model.Project, error) {
	s.mu.Lock()
	i, err := s.claim(id)
	if err != nil {
		s.mu.Unlock()
		return model.Project{}, err
	}
	before := s.projects[i]
	next, err := edit(before)
	if err != nil {
		delete(s.pending, id)
		s.mu.Unlock()
		return model.Project{}, err
	}
	s.projects[i] = next
	sortByName(s.projects)
	s.mu.Unlock()

	saved, err := s.remote.UpdateProject(ctx, next)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	i = s.index(id)
	if err != nil {
		if i >= 0 {
			s.projects[i] = before
			sortByName(s.projects)
		}
		return model.Project{}, s.failed(op, before.Name, err)
	}
	if i >= 0 {
		s.projects[i] = saved
		sortByName(s.projects)
	}
	s.logger.Info("project "+op+"d", slog.String("project_id", id))
	s.notifier.Info("Project updated")
	return saved, nil
}

// claim marks id as in flight. Called under s.mu.
func (s *Service) claim(id string) (int, error) {
	i := s.index(id)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	if s.pending[id] {
		return -1, fmt.Errorf("%w: %s", ErrBusy, s.projects[i].Name)
	}
	s.pending[id] = true
	return i, nil
}

func (s *Service) failed(op, name string, err error) error {
	s.logger.Error("project "+op+" failed", slog.String("name", name), slog.Any("error", err))
	s.notifier.Error("Failed to " + op + " project")
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return fmt.Errorf("%s project %q: %w", op, name, err)
}

func (s *Service) index(id string) int {
	for i, p := range s.projects {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) nameTaken(name, except string) bool {
	for _, p := range s.projects {
		if p.ID != except && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func normalize(name, color string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", ErrInvalidName
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultColor
	}
	if !colorPattern.MatchString(color) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	return name, strings.ToLower(color), nil
}

// DefaultColor is assigned to new projects created without one.
const DefaultColor = "#3b82f6"

func sortByName(ps []model.Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		return strings.ToLower(ps[i].Name) < strings.ToLower(ps[j].Name)
	})
}
