package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"komir.org/internal/audit"
	"komir.org/internal/directory"
)

type createClientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

type createSiteRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (a *API) handleClientsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.dir.ListClients(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		a.createClient(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/clients/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		c, err := a.dir.GetClient(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.dir.CreateClient(r.Context(), req.Name, req.Phone, req.Notes, actor)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.client.create", map[string]any{
		"client_id": c.ID,
		"name":      c.Name,
	})
	w.Header().Set("Location", "/v1/clients/"+strconv.FormatInt(c.ID, 10))
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleSitesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.dir.ListSites(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		a.createSite(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSiteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/sites/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		s, err := a.dir.GetSite(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) createSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createSiteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.dir.CreateSite(r.Context(), req.Name, req.Location, actor)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.site.create", map[string]any{
		"site_id": s.ID,
		"name":    s.Name,
	})
	w.Header().Set("Location", "/v1/sites/"+strconv.FormatInt(s.ID, 10))
	writeJSON(w, http.StatusCreated, s)
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, directory.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
