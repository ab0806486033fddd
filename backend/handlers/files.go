package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/files"
	"github.com/PhilHem/secureone/frontend/templates"
)

var Files *files.Service

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

func Dashboard(w http.ResponseWriter, r *http.Request) {
	email, _ := CurrentUser(r)
	p := page(w, r)

	list, err := Files.List(r.Context(), email)
	if err != nil {
		p.Flashes = append(p.Flashes, templates.Flash{Category: "error", Message: apperr.Message(err)})
	}
	totals := files.Summarize(list)

	rows := make([]templates.FileRow, 0, len(list))
	for _, f := range list {
		rows = append(rows, templates.FileRow{
			ID:        f.FileID,
			Name:      f.OriginalName,
			Size:      f.FileSize,
			Icon:      f.Icon,
			CreatedAt: f.CreatedAt,
		})
	}
	templates.Dashboard(p, rows, totals.Files, totals.MB(), Files.MaxSize()/(1024*1024)).Render(r.Context(), w)
}

func Upload(w http.ResponseWriter, r *http.Request) {
	email, _ := CurrentUser(r)
	session := getSession(r)
	defer func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}()

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		msg := "No file selected"
		if errors.As(err, &tooLarge) {
			msg = "File is too large"
		}
		addFlash(session, "error", msg)
		saveSession(w, r, session)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		addFlash(session, "error", "No file selected")
		saveSession(w, r, session)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	defer file.Close()

	if _, err := Files.Upload(r.Context(), email, header.Filename, file, header.Size); err != nil {
		addFlash(session, "error", apperr.Message(err))
	} else {
		addFlash(session, "success", "File uploaded successfully!")
	}
	saveSession(w, r, session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func Download(w http.ResponseWriter, r *http.Request) {
	email, _ := CurrentUser(r)
	id := r.PathValue("id")

	data, name, err := Files.Download(r.Context(), email, id)
	if err != nil {
		session := getSession(r)
		addFlash(session, "error", apperr.Message(err))
		saveSession(w, r, session)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := w.Write(data); err != nil {
		slog.WarnContext(r.Context(), "download interrupted", "source", "files", "user_email", email, "file_id", id, "error", err.Error())
	}
}

func DeleteFile(w http.ResponseWriter, r *http.Request) {
	email, _ := CurrentUser(r)
	session := getSession(r)

	err := Files.Delete(r.Context(), email, r.PathValue("id"))
	switch layer, isStorage := apperr.LayerOf(err); {
	case err == nil:
		addFlash(session, "success", "File deleted successfully!")
	case isStorage && layer == apperr.LayerBlob:
		addFlash(session, "error", "The file could not be removed from storage. Nothing was deleted, please try again.")
	case isStorage && layer == apperr.LayerMetadata:
		addFlash(session, "error", "The file content was removed but its record could not be deleted. Please try again.")
	default:
		addFlash(session, "error", apperr.Message(err))
	}
	saveSession(w, r, session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
