package chatapi

import (
	"errors"
	"mime"
	"net/http"

	"github.com/haivivi/chatlogo/pkg/apierr"
)

// MaxUploadBytes bounds an uploaded image.
const MaxUploadBytes = 5 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r, apierr.SurfaceUpload)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierr.Newf(apierr.BadRequest, apierr.SurfaceUpload, "file size should be less than 5MB").Write(w)
			return
		}
		apierr.Newf(apierr.BadRequest, apierr.SurfaceUpload, "parse form: %v", err).Write(w)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, fh, err := r.FormFile("file")
	if err != nil {
		apierr.Newf(apierr.BadRequest, apierr.SurfaceUpload, "no file uploaded").Write(w)
		return
	}
	defer f.Close()

	if fh.Size > MaxUploadBytes {
		apierr.Newf(apierr.BadRequest, apierr.SurfaceUpload, "file size should be less than 5MB").Write(w)
		return
	}
	ct, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if ct != "image/jpeg" && ct != "image/png" {
		apierr.Newf(apierr.BadRequest, apierr.SurfaceUpload, "file type should be JPEG or PNG").Write(w)
		return
	}

	up, err := s.svc.UploadImage(r.Context(), u, fh.Filename, ct, f)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		apierr.Newf(apierr.BadRequest, apierr.SurfaceAPI, "id is required").Write(w)
		return
	}
	u, err := s.authenticate(r, apierr.SurfaceDocument)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	docs, err := s.svc.Documents(r.Context(), u, id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}
