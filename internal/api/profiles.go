package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/profile"
	"github.com/nutrichat/nutrichat/internal/state"
)

type profileHandler struct {
	profiles *profile.Store
	index    VectorCleaner
	state    *state.Store
	logger   *slog.Logger
}

type profilePayload struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Sex            string `json:"sex"`
	Race           string `json:"race,omitempty"`
	Religion       string `json:"religion,omitempty"`
	Allergies      string `json:"allergies,omitempty"`
	Conditions     string `json:"conditions,omitempty"`
	MeatChoice     string `json:"meatChoice,omitempty"`
	FoodExclusions string `json:"foodExclusions,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

func toPayload(p *profile.Profile) profilePayload {
	return profilePayload{
		ID:             p.ID.String(),
		Name:           p.Name,
		Age:            p.AgeAtCreation,
		Sex:            p.Sex,
		Race:           p.Race,
		Religion:       p.Religion,
		Allergies:      p.Allergies,
		Conditions:     p.Conditions,
		MeatChoice:     p.MeatChoice,
		FoodExclusions: p.FoodExclusions,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}

func (h *profileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		h.logger.Error("listing profiles", "error", err)
		writeError(w, http.StatusInternalServerError, "listing profiles failed")
		return
	}

	payloads := make([]profilePayload, 0, len(profiles))
	for _, p := range profiles {
		payloads = append(payloads, toPayload(p))
	}
	writeJSON(w, http.StatusOK, payloads)
}

// upsert creates a profile, or replaces an existing one when an id is given.
// This is the form path: whole-profile replacement, unlike the field-level
// tool path. The new profile becomes active.
func (h *profileHandler) upsert(w http.ResponseWriter, r *http.Request) {
	var in profilePayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if in.Age <= 0 || in.Age > 150 {
		writeError(w, http.StatusBadRequest, "age must be between 1 and 150")
		return
	}

	id := uuid.New()
	if in.ID != "" {
		parsed, err := uuid.Parse(in.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid profile id")
			return
		}
		id = parsed
	}

	p := &profile.Profile{
		ID:             id,
		Name:           strings.TrimSpace(in.Name),
		AgeAtCreation:  in.Age,
		Sex:            profile.NormalizeSex(in.Sex),
		Race:           strings.TrimSpace(in.Race),
		Religion:       strings.TrimSpace(in.Religion),
		Allergies:      profile.ParseListField(in.Allergies).Join(),
		Conditions:     profile.ParseListField(in.Conditions).Join(),
		MeatChoice:     strings.TrimSpace(in.MeatChoice),
		FoodExclusions: profile.ParseListField(in.FoodExclusions).Join(),
	}
	if err := h.profiles.Upsert(r.Context(), p); err != nil {
		h.logger.Error("upserting profile", "error", err)
		writeError(w, http.StatusInternalServerError, "saving profile failed")
		return
	}
	if err := h.state.Put(r.Context(), state.KeyActiveProfile, p.ID.String()); err != nil {
		h.logger.Warn("setting active profile", "error", err)
	}

	stored, err := h.profiles.Get(r.Context(), p.ID)
	if err != nil {
		writeJSON(w, http.StatusCreated, toPayload(p))
		return
	}
	writeJSON(w, http.StatusCreated, toPayload(stored))
}

func (h *profileHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	p, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("loading profile", "error", err)
		writeError(w, http.StatusInternalServerError, "loading profile failed")
		return
	}
	writeJSON(w, http.StatusOK, toPayload(p))
}

// delete removes the profile; sessions, results and vectors cascade with it,
// and the active-profile pointer is cleared if it pointed here.
func (h *profileHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	if err := h.profiles.Delete(r.Context(), id); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("deleting profile", "error", err)
		writeError(w, http.StatusInternalServerError, "deleting profile failed")
		return
	}

	if h.index != nil {
		if err := h.index.DeleteByProfile(r.Context(), id); err != nil {
			h.logger.Warn("clearing profile vectors", "error", err)
		}
	}
	if active, err := h.state.Get(r.Context(), state.KeyActiveProfile); err == nil && active == id.String() {
		if err := h.state.Delete(r.Context(), state.KeyActiveProfile); err != nil {
			h.logger.Warn("clearing active profile pointer", "error", err)
		}
	}
	if err := h.state.Delete(r.Context(), state.ActiveSessionKey(id)); err != nil {
		h.logger.Warn("clearing active session pointer", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *profileHandler) activate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	if _, err := h.profiles.Get(r.Context(), id); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading profile failed")
		return
	}
	if err := h.state.Put(r.Context(), state.KeyActiveProfile, id.String()); err != nil {
		h.logger.Error("setting active profile", "error", err)
		writeError(w, http.StatusInternalServerError, "activating profile failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeProfileId": id.String()})
}
