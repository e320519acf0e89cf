package demoserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/session"
)

type userKey struct{}

func userFrom(ctx context.Context) domain.User {
	user, _ := ctx.Value(userKey{}).(domain.User)
	return user
}

// authed verifies the bearer token and puts the caller on the context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		claims := &session.Claims{}
		token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(s.settings.Secret), nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "Session expired")
			return
		}
		user, ok := s.store.UserByEmail(claims.Email)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unknown user")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := s.store.UserByEmail(req.Email)
	if !ok || req.Password != s.settings.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	claims := session.NewClaims(user, s.clock(), s.settings.TokenTTL)
	claims.ID = uuid.NewString()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.settings.Secret))
	if err != nil {
		s.logger.Error().Err(err).Msg("demoserver: sign token")
		writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	s.logger.Info().Str("email", user.Email).Msg("demoserver: login")
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: token, User: user})
}

func (s *Server) handleListInitiatives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.InitiativeFilter{Site: q.Get("site"), Status: q.Get("status"), Search: q.Get("search")}
	writeJSON(w, http.StatusOK, s.store.Initiatives(userFrom(r.Context()), filter))
}

func (s *Server) handleGetInitiative(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, err := s.store.Initiative(userFrom(r.Context()), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleCreateInitiative(w http.ResponseWriter, r *http.Request) {
	var in domain.Initiative
	if !decodeBody(w, r, &in) {
		return
	}
	created, err := s.store.CreateInitiative(userFrom(r.Context()), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.saveAfterMutation()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateInitiative(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in domain.Initiative
	if !decodeBody(w, r, &in) {
		return
	}
	in.ID = id
	updated, err := s.store.UpdateInitiative(userFrom(r.Context()), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.saveAfterMutation()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := api.UserFilter{Role: domain.ParseRole(q.Get("role")), Site: q.Get("site")}
	writeJSON(w, http.StatusOK, s.store.Users(filter))
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.Initiative(userFrom(r.Context()), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	txs, err := s.store.Transactions(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCurrentPending(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, found, err := s.store.CurrentPending(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "No pending transaction")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	progress, err := s.store.Progress(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req api.ProcessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actor := userFrom(r.Context())
	tx, err := s.store.Process(r.Context(), actor, id, req)
	if err != nil {
		s.logger.Warn().Err(err).Int64("transaction", id).Str("action", string(req.Action)).Msg("demoserver: process")
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info().
		Int64("transaction", id).
		Int("stage", tx.StageNumber).
		Str("action", string(req.Action)).
		Str("actor", actor.Email).
		Msg("demoserver: process")
	s.saveAfterMutation()
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := s.store.Timeline(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTimelineCompleted(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := s.store.Timeline(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allCompleted": domain.AllCompleted(entries)})
}

func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := s.store.Monitoring(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFAApprove(w http.ResponseWriter, r *http.Request) {
	var req api.FAApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	approved, err := s.store.ApproveFA(userFrom(r.Context()), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.saveAfterMutation()
	writeJSON(w, http.StatusOK, map[string]int{"approved": approved})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	files, err := s.store.Files(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.settings.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	actor := userFrom(r.Context())
	out := make([]domain.InitiativeFile, 0, len(headers))
	for _, header := range headers {
		if header.Size > api.MaxUploadSize {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds 5 MB", header.Filename))
			return
		}
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unreadable upload")
			return
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unreadable upload")
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mimetype.Detect(content).String()
		}
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mediaType
		}
		if !api.UploadTypeAllowed(contentType) {
			writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("%s: type %s not allowed", header.Filename, contentType))
			return
		}
		stored, err := s.store.AddFile(actor, id, filepath.Base(header.Filename), contentType, content)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		out = append(out, stored)
	}
	s.saveAfterMutation()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	file, err := s.store.File(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	contentType := file.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Content)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Content)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteFile(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.saveAfterMutation()
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.Message)
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "This stage has already been processed")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")
	default:
		s.logger.Error().Err(err).Msg("demoserver: request failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
