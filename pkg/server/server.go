// Package server exposes the HTTP surface: login, temp token minting, the
// NDJSON chat stream, and the memory.bin asset endpoints.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
	"github.com/companionlabs/avatarmem-go/pkg/catalog"
	"github.com/companionlabs/avatarmem-go/pkg/llm"
	"github.com/companionlabs/avatarmem-go/pkg/session"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	catalog  catalog.Store
	blobs    blob.Store
	sessions *session.Store
	locks    *session.LockTable
	bridge   *session.StreamBridge
	tokens   TokenMinter

	// WebDir serves static client files under /web/ when non-empty.
	WebDir string

	// AssetsDir serves avatar media and memory files under /assets/ when
	// non-empty.
	AssetsDir string
}

// New creates a server over the given collaborators.
func New(cat catalog.Store, blobs blob.Store, sessions *session.Store, locks *session.LockTable, bridge *session.StreamBridge, tokens TokenMinter) *Server {
	return &Server{
		catalog:  cat,
		blobs:    blobs,
		sessions: sessions,
		locks:    locks,
		bridge:   bridge,
		tokens:   tokens,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/generate_temp_token", s.handleTempToken)
	mux.HandleFunc("/chat_stream", s.handleChatStream)
	mux.HandleFunc("/api/assets/", s.handleAssets)
	if s.AssetsDir != "" {
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.AssetsDir))))
	}
	if s.WebDir != "" {
		mux.Handle("/web/", http.StripPrefix("/web/", http.FileServer(http.Dir(s.WebDir))))
	}
	return mux
}

type loginRequest struct {
	UnionID string `json:"unionid"`
}

type userInfo struct {
	UnionID    string                `json:"unionid"`
	RolesList  []*catalog.Role       `json:"roles_list"`
	VoicesList []*catalog.Voice      `json:"voices_list"`
	BgList     []*catalog.Background `json:"bg_list,omitempty"`
}

type loginResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	UserInfo userInfo `json:"userInfo"`
}

// handleLogin resolves a unionid to its roles, voices, and backgrounds.
// An unknown user is not an HTTP error; the response carries success=false
// and empty lists.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()

	if _, err := s.catalog.GetUser(ctx, req.UnionID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeJSON(w, http.StatusOK, loginResponse{
				Success: false,
				Message: "user not found",
				UserInfo: userInfo{
					UnionID:    req.UnionID,
					RolesList:  []*catalog.Role{},
					VoicesList: []*catalog.Voice{},
				},
			})
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	roles, err := s.catalog.ListRoles(ctx, req.UnionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	voices, err := s.catalog.ListVoices(ctx, req.UnionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	bgs, err := s.catalog.ListBackgrounds(ctx, req.UnionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	if roles == nil {
		roles = []*catalog.Role{}
	}
	if voices == nil {
		voices = []*catalog.Voice{}
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "login successful",
		UserInfo: userInfo{
			UnionID:    req.UnionID,
			RolesList:  roles,
			VoicesList: voices,
			BgList:     bgs,
		},
	})
}

// handleTempToken mints a short-lived token for a known user.
func (s *Server) handleTempToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UnionID == "" {
		writeDetail(w, http.StatusBadRequest, "unionid is required")
		return
	}

	if _, err := s.catalog.GetUser(r.Context(), req.UnionID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "user not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := s.tokens.MintTempToken(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, token)
}

type chatRequest struct {
	UnionID      string   `json:"unionid"`
	AvatarID     string   `json:"avatar_id"`
	Prompt       string   `json:"prompt"`
	MemoryPrompt []string `json:"memory_prompt"`
}

// handleChatStream runs one chat turn and streams the reply as NDJSON.
// Session lookup and message assembly happen under the user's lock; the
// lock is released before streaming begins.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.catalog.GetUser(r.Context(), req.UnionID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "user not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages, err := s.assembleMessages(r, &req)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "role not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	s.bridge.Stream(w, req.UnionID, req.AvatarID, req.Prompt, messages)
}

// assembleMessages builds the model input under the user's lock: the
// combined system prompt, the rolling transcript, then the new user turn.
func (s *Server) assembleMessages(r *http.Request, req *chatRequest) ([]llm.Message, error) {
	lock := s.locks.Get(req.UnionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.sessions.GetOrCreate(r.Context(), req.UnionID, req.AvatarID, req.MemoryPrompt)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(sess.Messages)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sess.CombinedPrompt})
	messages = append(messages, sess.Messages...)
	messages = append(messages, llm.Message{Role: "user", Content: req.Prompt})
	return messages, nil
}

// handleAssets serves the memory.bin upload and download endpoints at
// /api/assets/{avatar_id}/memory.bin.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "memory.bin" {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	avatarID := parts[0]

	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("upload failed: %v", err))
			return
		}
		if len(data) == 0 {
			writeDetail(w, http.StatusBadRequest, "no data received")
			return
		}
		if err := s.blobs.Put(r.Context(), avatarID, data); err != nil {
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("upload failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "upload successful"})

	case http.MethodGet:
		data, err := s.blobs.Get(r.Context(), avatarID)
		if errors.Is(err, blob.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "file not found")
			return
		}
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("download failed: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename=memory.bin`)
		if _, err := w.Write(data); err != nil {
			log.Printf("avatarmem: asset write failed for avatar %s: %v", avatarID, err)
		}

	default:
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("avatarmem: response write failed: %v", err)
	}
}

// writeDetail writes an error response in the {"detail": ...} shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
