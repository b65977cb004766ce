package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

const maxBodyBytes = 1 << 20

type handler struct {
	backend storage.Backend
	srv     *Server
}

func (h *handler) store(r *http.Request) storage.Store {
	return h.backend.ForUser(UserID(r.Context()))
}

// fail writes err and logs it when it is not a client error.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := storeError(err)
	if e.Status >= 500 {
		h.srv.logger.Error(op, slog.String("user_id", UserID(r.Context())), slog.Any("error", err))
	}
	writeError(w, e)
}

func decode(w http.ResponseWriter, r *http.Request, v any) *Error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (h *handler) listSlots(w http.ResponseWriter, r *http.Request) {
	q := storage.SlotQuery{
		Date: r.URL.Query().Get("date"),
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	for _, d := range []string{q.Date, q.From, q.To} {
		if d != "" && !timecalc.ValidDate(d) {
			writeError(w, badRequest(fmt.Sprintf("invalid date %q", d)))
			return
		}
	}
	slots, err := h.store(r).SelectSlots(r.Context(), q)
	if err != nil {
		h.fail(w, r, "select slots", err)
		return
	}
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *handler) insertSlots(w http.ResponseWriter, r *http.Request) {
	var slots []model.TimeSlot
	if e := decode(w, r, &slots); e != nil {
		writeError(w, e)
		return
	}
	if len(slots) == 0 {
		writeError(w, badRequest("no slots given"))
		return
	}
	for _, s := range slots {
		if s.ProjectID == "" || !timecalc.ValidDate(s.Date) || !timecalc.ValidTick(s.TimeSlot) {
			writeError(w, badRequest(fmt.Sprintf("invalid slot %s %v", s.Date, s.TimeSlot)))
			return
		}
	}
	created, err := h.store(r).InsertSlots(r.Context(), slots)
	if err != nil {
		h.fail(w, r, "insert slots", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateSlot(w http.ResponseWriter, r *http.Request) {
	var patch storage.SlotPatch
	if e := decode(w, r, &patch); e != nil {
		writeError(w, e)
		return
	}
	if patch.ProjectID != nil && *patch.ProjectID == "" {
		writeError(w, badRequest("project_id must not be empty"))
		return
	}
	slot, err := h.store(r).UpdateSlot(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, "update slot", err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (h *handler) deleteSlots(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		writeError(w, badRequest("at least one id is required"))
		return
	}
	if err := h.store(r).DeleteSlots(r.Context(), ids); err != nil {
		h.fail(w, r, "delete slots", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store(r).ListProjects(r.Context())
	if err != nil {
		h.fail(w, r, "list projects", err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func decodeProject(w http.ResponseWriter, r *http.Request) (model.Project, *Error) {
	var p model.Project
	if e := decode(w, r, &p); e != nil {
		return p, e
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, badRequest("project name must not be blank")
	}
	return p, nil
}

func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	p, e := decodeProject(w, r)
	if e != nil {
		writeError(w, e)
		return
	}
	created, err := h.store(r).InsertProject(r.Context(), p)
	if err != nil {
		h.fail(w, r, "insert project", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateProject(w http.ResponseWriter, r *http.Request) {
	p, e := decodeProject(w, r)
	if e != nil {
		writeError(w, e)
		return
	}
	p.ID = chi.URLParam(r, "id")
	saved, err := h.store(r).UpdateProject(r.Context(), p)
	if err != nil {
		h.fail(w, r, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.store(r).DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store(r).GetSettings(r.Context())
	if err != nil {
		h.fail(w, r, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) createSettings(w http.ResponseWriter, r *http.Request) {
	var s model.UserSettings
	if e := decode(w, r, &s); e != nil {
		writeError(w, e)
		return
	}
	created, err := h.store(r).InsertSettings(r.Context(), s)
	if err != nil {
		h.fail(w, r, "insert settings", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch storage.SettingsPatch
	if e := decode(w, r, &patch); e != nil {
		writeError(w, e)
		return
	}
	saved, err := h.store(r).UpdateSettings(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
