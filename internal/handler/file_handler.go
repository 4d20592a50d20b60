package handler

import (
	"log"
	"net/http"

	"sharebox/internal/auth"
	"sharebox/internal/domain"
	"sharebox/internal/service"
)

// maxUploadMemory: сколько multipart-данных держится в памяти, остальное на диске
const maxUploadMemory = 32 << 20

type FileHandler struct {
	fileService  *service.FileService
	shareService *service.ShareService
}

func NewFileHandler(fileService *service.FileService, shareService *service.ShareService) *FileHandler {
	return &FileHandler{
		fileService:  fileService,
		shareService: shareService,
	}
}

// UploadFile принимает multipart-поле file в пространство spaceId
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	spaceID, err := uuidParam(r, "spaceId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		log.Printf("[UploadFile] failed to parse form: %v", err)
		badRequest(w, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "No file uploaded")
		return
	}
	defer file.Close()

	created, err := h.fileService.Upload(r.Context(), auth.CallerFrom(r.Context()), domain.FileUpload{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		SpaceID:  spaceID,
	}, file)
	if err != nil {
		respondError(w, "UploadFile", err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	info, err := h.fileService.Get(r.Context(), auth.CallerFrom(r.Context()), fileID)
	if err != nil {
		respondError(w, "GetFile", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DownloadFile: скачивание владельцем; пароль файла всё равно нужен
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	d := &delivery{w: w}
	err = h.shareService.DownloadFile(r.Context(), service.FileAccessRequest{
		FileID:   fileID,
		Password: passwordFrom(r),
		Caller:   auth.CallerFrom(r.Context()),
	}, d.file())
	d.finish("DownloadFile", err)
}

func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req renameRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	file, err := h.fileService.Rename(r.Context(), auth.CallerFrom(r.Context()), fileID, req.Name)
	if err != nil {
		respondError(w, "RenameFile", err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.fileService.Delete(r.Context(), auth.CallerFrom(r.Context()), fileID); err != nil {
		respondError(w, "DeleteFile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) LockFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req lockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.fileService.Lock(r.Context(), auth.CallerFrom(r.Context()), fileID, req.Password, req.RepeatPassword); err != nil {
		respondError(w, "LockFile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) UnlockFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuidParam(r, "fileId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req unlockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.fileService.Unlock(r.Context(), auth.CallerFrom(r.Context()), fileID, req.Password); err != nil {
		respondError(w, "UnlockFile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
