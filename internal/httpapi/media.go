package httpapi

import (
	"net/http"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/token"
)

const maxUploadBytes = 64 << 20 // 64MiB, generous for a voice-answer clip or resume

type uploadResponse struct {
	Ref      string `json:"ref"`
	Checksum string `json:"checksum"`
	Bytes    int64  `json:"bytes"`
}

// handleMediaUpload redeems a bearer upt against a multipart file body.
// The upt itself carries the session binding, so this route needs no
// {id} path segment.
func (s *Server) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	rawToken, err := bearerFromHeaderOrForm(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "missing file field"))
		return
	}
	defer file.Close()

	result, err := s.upload.Upload(r.Context(), rawToken, header, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Ref: result.Path, Checksum: result.Checksum, Bytes: result.Bytes})
}

// bearerFromHeaderOrForm accepts the upt either as an Authorization header
// or a form field, since browser <form> uploads cannot set headers.
func bearerFromHeaderOrForm(r *http.Request) (string, error) {
	if raw, err := token.BearerFromRequest(r); err == nil {
		return raw, nil
	}
	if v := r.FormValue("upt"); v != "" {
		return v, nil
	}
	return "", apperrors.New(apperrors.TokenMissing, "missing upload token")
}
