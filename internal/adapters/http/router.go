package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/core/ports"
)

// turnObserver receives timing/fan-out observations for completed turns.
type turnObserver interface {
	ObserveTurn(mode string, sourceCount int, duration time.Duration)
}

type noopTurnObserver struct{}

func (noopTurnObserver) ObserveTurn(string, int, time.Duration) {}

type Config struct {
	RateLimitRPS    int
	RateLimitBurst  int
	MaxConcurrent   int
	OverloadWait    time.Duration
	MaxUploadBytes  int64
	MetricsHandler  http.Handler
	TurnObserver    turnObserver
	ExtraMiddleware func(http.Handler) http.Handler
}

type Router struct {
	chat   ports.ChatService
	ingest ports.DocumentIngestor
	repo   ports.DocumentRepository
	users  ports.UserStore
	auth   *TokenAuthority
	cfg    Config
	logger *slog.Logger
}

func NewRouter(
	chat ports.ChatService,
	ingest ports.DocumentIngestor,
	repo ports.DocumentRepository,
	users ports.UserStore,
	auth *TokenAuthority,
	cfg Config,
	logger *slog.Logger,
) *Router {
	if cfg.TurnObserver == nil {
		cfg.TurnObserver = noopTurnObserver{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		chat:   chat,
		ingest: ingest,
		repo:   repo,
		users:  users,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/auth/login", rt.login)
	mux.HandleFunc("/v1/auth/users", rt.authMiddleware(rt.createUser))
	mux.HandleFunc("/v1/chat", rt.authMiddleware(rt.submitTurn))
	mux.HandleFunc("/v1/chat/history", rt.authMiddleware(rt.getHistory))
	mux.HandleFunc("/v1/documents", rt.authMiddleware(rt.uploadDocument))
	mux.HandleFunc("/v1/documents/", rt.authMiddleware(rt.getDocumentByID))
	if rt.cfg.MetricsHandler != nil {
		mux.Handle("/metrics", rt.cfg.MetricsHandler)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxConcurrent, rt.cfg.OverloadWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.cfg.ExtraMiddleware != nil {
		handler = rt.cfg.ExtraMiddleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	user, err := rt.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		// Not-found and store failures both read as invalid credentials.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token, expiresAt, err := rt.auth.Issue(user)
	if err != nil {
		rt.logger.Error("token_issue_failed", "username", req.Username, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue token"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"role":       string(user.Role),
	})
}

func (rt *Router) createUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	if id.Role != domain.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "user creation requires the admin role"})
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	role := domain.UserRole(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleUser
	}
	switch role {
	case domain.RoleAdmin, domain.RoleUser, domain.RoleRestrictedUser:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be admin, user or ruser"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		rt.logger.Error("password_hash_failed", "username", username, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create user"})
		return
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := rt.users.Create(r.Context(), user); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"role":     string(user.Role),
	})
}

func (rt *Router) submitTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Mode           string `json:"mode"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	session, ok := rt.sessionFromRequest(w, id, req.ConversationID, req.Mode)
	if !ok {
		return
	}

	start := time.Now()
	result, err := rt.chat.SubmitTurn(r.Context(), session, req.Message)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	rt.cfg.TurnObserver.ObserveTurn(string(session.Mode), len(result.Sources), time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": session.ConversationID,
		"mode":            string(session.Mode),
		"answer":          result.Answer,
		"sources":         result.Sources,
	})
}

func (rt *Router) getHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	session, ok := rt.sessionFromRequest(w, id, r.URL.Query().Get("conversation_id"), r.URL.Query().Get("mode"))
	if !ok {
		return
	}

	messages, err := rt.chat.GetHistory(r.Context(), session)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": session.ConversationID,
		"mode":            string(session.Mode),
		"messages":        messages,
	})
}

// sessionFromRequest validates conversation/mode and writes the error
// response itself when validation fails. Mode defaults to public.
func (rt *Router) sessionFromRequest(w http.ResponseWriter, id identity, conversationID, mode string) (domain.SessionContext, bool) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
		return domain.SessionContext{}, false
	}

	sessionMode := domain.SessionMode(strings.TrimSpace(mode))
	if sessionMode == "" {
		sessionMode = domain.ModePublic
	}
	if !sessionMode.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be public or dual"})
		return domain.SessionContext{}, false
	}

	return domain.SessionContext{
		UserID:         id.UserID,
		Role:           id.Role,
		ConversationID: conversationID,
		Mode:           sessionMode,
	}, true
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	partition := domain.Partition(strings.TrimSpace(r.FormValue("partition")))
	if partition == "" {
		partition = domain.PartitionPublic
	}
	if partition == domain.PartitionSecure && id.Role != domain.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "secure uploads require the admin role"})
		return
	}

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		partition,
		strings.TrimSpace(r.FormValue("category")),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	docID := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if docID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.repo.GetByID(r.Context(), docID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	// Secure document metadata stays behind the same wall as its content.
	if doc.Partition == domain.PartitionSecure && id.Role == domain.RoleRestrictedUser {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
