package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sharebox/internal/auth"
	"sharebox/internal/service"
)

// ShareHandler: управление ссылками (владелец) и гостевой доступ по ним
type ShareHandler struct {
	permissions  *service.PermissionService
	linkService  *service.LinkService
	shareService *service.ShareService
}

func NewShareHandler(
	permissions *service.PermissionService,
	linkService *service.LinkService,
	shareService *service.ShareService,
) *ShareHandler {
	return &ShareHandler{
		permissions:  permissions,
		linkService:  linkService,
		shareService: shareService,
	}
}

func (h *ShareHandler) CreateFileLink(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req fileLinkRequest
	if err := decodeJSON(r, &req, true); err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckFile(r.Context(), auth.CallerFrom(r.Context()), fileID, service.OperationShare); err != nil {
		respondError(w, "CreateFileLink", err)
		return
	}

	link, err := h.linkService.CreateFileLink(r.Context(), fileID, req.options())
	if err != nil {
		respondError(w, "CreateFileLink", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.linkService.FileLinkView(link))
}

func (h *ShareHandler) ModifyFileLink(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req fileLinkRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckFile(r.Context(), auth.CallerFrom(r.Context()), fileID, service.OperationShare); err != nil {
		respondError(w, "ModifyFileLink", err)
		return
	}

	link, err := h.linkService.ModifyFileLink(r.Context(), fileID, chi.URLParam(r, "secret"), req.options())
	if err != nil {
		respondError(w, "ModifyFileLink", err)
		return
	}
	writeJSON(w, http.StatusOK, h.linkService.FileLinkView(link))
}

// RemoveFileLink удаляет прямую ссылку; дочерние ссылки удалить нельзя (403)
func (h *ShareHandler) RemoveFileLink(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckFile(r.Context(), auth.CallerFrom(r.Context()), fileID, service.OperationShare); err != nil {
		respondError(w, "RemoveFileLink", err)
		return
	}

	if err := h.linkService.RemoveFileLink(r.Context(), fileID, chi.URLParam(r, "secret")); err != nil {
		respondError(w, "RemoveFileLink", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShareHandler) ListFileLinks(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckFile(r.Context(), auth.CallerFrom(r.Context()), fileID, service.OperationView); err != nil {
		respondError(w, "ListFileLinks", err)
		return
	}

	links, err := h.linkService.ListFileLinks(r.Context(), fileID)
	if err != nil {
		respondError(w, "ListFileLinks", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *ShareHandler) CreateSpaceLink(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req spaceLinkRequest
	if err := decodeJSON(r, &req, true); err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckSpace(r.Context(), auth.CallerFrom(r.Context()), spaceID, service.OperationShare); err != nil {
		respondError(w, "CreateSpaceLink", err)
		return
	}

	link, err := h.linkService.CreateSpaceLink(r.Context(), spaceID, req.options())
	if err != nil {
		respondError(w, "CreateSpaceLink", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.linkService.SpaceLinkView(link))
}

// ModifySpaceLink: новый срок действия переносится на дочерние ссылки
func (h *ShareHandler) ModifySpaceLink(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req spaceLinkRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckSpace(r.Context(), auth.CallerFrom(r.Context()), spaceID, service.OperationShare); err != nil {
		respondError(w, "ModifySpaceLink", err)
		return
	}

	link, err := h.linkService.ModifySpaceLink(r.Context(), spaceID, chi.URLParam(r, "secret"), req.options())
	if err != nil {
		respondError(w, "ModifySpaceLink", err)
		return
	}
	writeJSON(w, http.StatusOK, h.linkService.SpaceLinkView(link))
}

func (h *ShareHandler) RemoveSpaceLink(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckSpace(r.Context(), auth.CallerFrom(r.Context()), spaceID, service.OperationShare); err != nil {
		respondError(w, "RemoveSpaceLink", err)
		return
	}

	if err := h.linkService.RemoveSpaceLink(r.Context(), spaceID, chi.URLParam(r, "secret")); err != nil {
		respondError(w, "RemoveSpaceLink", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShareHandler) ListSpaceLinks(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.permissions.CheckSpace(r.Context(), auth.CallerFrom(r.Context()), spaceID, service.OperationView); err != nil {
		respondError(w, "ListSpaceLinks", err)
		return
	}

	links, err := h.linkService.ListSpaceLinks(r.Context(), spaceID)
	if err != nil {
		respondError(w, "ListSpaceLinks", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// VerifyFileSecret: гостевая страница ссылки: куда ведёт и нужен ли пароль
func (h *ShareHandler) VerifyFileSecret(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		badRequest(w, "secret is required")
		return
	}

	info, err := h.shareService.VerifyFileSecret(r.Context(), secret)
	if err != nil {
		respondError(w, "VerifyFileSecret", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *ShareHandler) VerifySpaceSecret(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		badRequest(w, "secret is required")
		return
	}

	info, err := h.shareService.VerifySpaceSecret(r.Context(), secret)
	if err != nil {
		respondError(w, "VerifySpaceSecret", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *ShareHandler) SpaceAccess(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	view, err := h.shareService.SpaceAccess(r.Context(), service.SpaceAccessRequest{
		SpaceID:  spaceID,
		Secret:   r.URL.Query().Get("secret"),
		Password: passwordFrom(r),
		Caller:   auth.CallerFrom(r.Context()),
	})
	if err != nil {
		respondError(w, "SpaceAccess", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DownloadFile: скачивание по ссылке. Скачивание учитывается, только если
// передача завершилась без ошибки.
func (h *ShareHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found")
		return
	}

	d := &delivery{w: w}
	err = h.shareService.DownloadFile(r.Context(), service.FileAccessRequest{
		FileID:   fileID,
		Secret:   secret,
		Password: passwordFrom(r),
		Caller:   auth.CallerFrom(r.Context()),
	}, d.file())
	d.finish("ShareDownloadFile", err)
}

func (h *ShareHandler) DownloadSpace(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	d := &delivery{w: w}
	err = h.shareService.DownloadSpace(r.Context(), service.SpaceAccessRequest{
		SpaceID:  spaceID,
		Secret:   r.URL.Query().Get("secret"),
		Password: passwordFrom(r),
		Caller:   auth.CallerFrom(r.Context()),
	}, d.archive())
	d.finish("ShareDownloadSpace", err)
}
