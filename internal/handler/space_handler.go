package handler

import (
	"net/http"

	"sharebox/internal/auth"
	"sharebox/internal/service"
)

type SpaceHandler struct {
	spaceService *service.SpaceService
}

func NewSpaceHandler(spaceService *service.SpaceService) *SpaceHandler {
	return &SpaceHandler{spaceService: spaceService}
}

func (h *SpaceHandler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var req createSpaceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	space, err := h.spaceService.Create(r.Context(), auth.CallerFrom(r.Context()), req.Name, req.Password)
	if err != nil {
		respondError(w, "CreateSpace", err)
		return
	}
	writeJSON(w, http.StatusCreated, space)
}

func (h *SpaceHandler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.spaceService.List(r.Context(), auth.CallerFrom(r.Context()))
	if err != nil {
		respondError(w, "ListSpaces", err)
		return
	}
	writeJSON(w, http.StatusOK, spaces)
}

// GetSpace возвращает файлы пространства и его ссылки
func (h *SpaceHandler) GetSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	content, err := h.spaceService.Get(r.Context(), auth.CallerFrom(r.Context()), spaceID)
	if err != nil {
		respondError(w, "GetSpace", err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (h *SpaceHandler) RenameSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req renameRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	space, err := h.spaceService.Rename(r.Context(), auth.CallerFrom(r.Context()), spaceID, req.Name)
	if err != nil {
		respondError(w, "RenameSpace", err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (h *SpaceHandler) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.spaceService.Delete(r.Context(), auth.CallerFrom(r.Context()), spaceID); err != nil {
		respondError(w, "DeleteSpace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SpaceHandler) LockSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req lockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.spaceService.Lock(r.Context(), auth.CallerFrom(r.Context()), spaceID, req.Password, req.RepeatPassword); err != nil {
		respondError(w, "LockSpace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SpaceHandler) UnlockSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req unlockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.spaceService.Unlock(r.Context(), auth.CallerFrom(r.Context()), spaceID, req.Password); err != nil {
		respondError(w, "UnlockSpace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadSpace отдаёт владельцу архив незаблокированных файлов
func (h *SpaceHandler) DownloadSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	d := &delivery{w: w}
	err = h.spaceService.DownloadAll(r.Context(), auth.CallerFrom(r.Context()), spaceID, d.archive())
	d.finish("DownloadSpace", err)
}
