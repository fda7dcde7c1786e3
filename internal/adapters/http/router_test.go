package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

type chatServiceFake struct {
	result   *domain.TurnResult
	history  []domain.ChatMessage
	err      error
	sessions []domain.SessionContext
}

func (f *chatServiceFake) SubmitTurn(_ context.Context, session domain.SessionContext, _ string) (*domain.TurnResult, error) {
	f.sessions = append(f.sessions, session)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *chatServiceFake) GetHistory(_ context.Context, session domain.SessionContext) ([]domain.ChatMessage, error) {
	f.sessions = append(f.sessions, session)
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type ingestorFake struct {
	doc        *domain.Document
	err        error
	partitions []domain.Partition
}

func (f *ingestorFake) Upload(_ context.Context, filename, _ string, partition domain.Partition, _ string, _ io.Reader) (*domain.Document, error) {
	f.partitions = append(f.partitions, partition)
	if f.err != nil {
		return nil, f.err
	}
	doc := f.doc
	if doc == nil {
		doc = &domain.Document{ID: "d1", Filename: filename, Partition: partition, Status: domain.StatusUploaded}
	}
	return doc, nil
}

type documentRepoFake struct {
	docs map[string]*domain.Document
}

func (f *documentRepoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", errors.New(id))
	}
	return doc, nil
}

func (f *documentRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}

type userStoreFake struct {
	users map[string]*domain.User
}

func (f *userStoreFake) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get user", errors.New(username))
	}
	return user, nil
}

func (f *userStoreFake) Create(_ context.Context, user *domain.User) error {
	if _, exists := f.users[user.Username]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create user", errors.New("username already exists"))
	}
	f.users[user.Username] = user
	return nil
}

type routerFixture struct {
	router *Router
	chat   *chatServiceFake
	ingest *ingestorFake
	repo   *documentRepoFake
	users  *userStoreFake
	auth   *TokenAuthority
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}

	users := &userStoreFake{users: map[string]*domain.User{
		"alice": {ID: "u1", Username: "alice", PasswordHash: string(hash), Role: domain.RoleUser},
		"root":  {ID: "u0", Username: "root", PasswordHash: string(hash), Role: domain.RoleAdmin},
		"guest": {ID: "u2", Username: "guest", PasswordHash: string(hash), Role: domain.RoleRestrictedUser},
	}}

	chat := &chatServiceFake{result: &domain.TurnResult{
		Answer:  "The retention period is 7 years.",
		Sources: []string{"policy.pdf (page 3)"},
	}}
	ingest := &ingestorFake{}
	repo := &documentRepoFake{docs: map[string]*domain.Document{
		"d-secure": {ID: "d-secure", Filename: "s.pdf", Partition: domain.PartitionSecure},
	}}
	auth := NewTokenAuthority("test-secret", time.Hour)

	return &routerFixture{
		router: NewRouter(chat, ingest, repo, users, auth, Config{}, nil),
		chat:   chat,
		ingest: ingest,
		repo:   repo,
		users:  users,
		auth:   auth,
	}
}

func (fx *routerFixture) loginToken(t *testing.T, username string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": "secret"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("expected token in login response")
	}
	return token
}

func TestLoginRejectsBadPassword(t *testing.T) {
	fx := newRouterFixture(t)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "alice")

	body, _ := json.Marshal(map[string]string{"username": "bob", "password": "pw", "role": "user"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/users", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", res.Code)
	}
	if _, exists := fx.users.users["bob"]; exists {
		t.Fatalf("expected no user to be created")
	}
}

func TestAdminCreatedUserCanLogin(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "root")

	body, _ := json.Marshal(map[string]string{"username": "bob", "password": "hunter2", "role": "ruser"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/users", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	created := fx.users.users["bob"]
	if created == nil || created.Role != domain.RoleRestrictedUser {
		t.Fatalf("expected stored ruser account, got %+v", created)
	}
	if created.PasswordHash == "hunter2" {
		t.Fatalf("expected password to be hashed")
	}

	loginBody, _ := json.Marshal(map[string]string{"username": "bob", "password": "hunter2"})
	loginReq := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(loginBody))
	loginRes := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(loginRes, loginReq)

	if loginRes.Code != http.StatusOK {
		t.Fatalf("expected created user to log in, got %d: %s", loginRes.Code, loginRes.Body.String())
	}
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "root")

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "pw"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/users", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate username, got %d", res.Code)
	}
}

func TestChatRequiresBearerToken(t *testing.T) {
	fx := newRouterFixture(t)

	body, _ := json.Marshal(map[string]string{"conversation_id": "c1", "message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
	if len(fx.chat.sessions) != 0 {
		t.Fatalf("expected no chat call without token")
	}
}

func TestChatTurnCarriesIdentityAndMode(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "alice")

	body, _ := json.Marshal(map[string]string{
		"conversation_id": "c1",
		"mode":            "dual",
		"message":         "what is the retention period?",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(fx.chat.sessions) != 1 {
		t.Fatalf("expected one chat call, got %d", len(fx.chat.sessions))
	}
	session := fx.chat.sessions[0]
	if session.UserID != "u1" || session.Role != domain.RoleUser {
		t.Fatalf("unexpected identity in session: %+v", session)
	}
	if session.Mode != domain.ModeDual || session.ConversationID != "c1" {
		t.Fatalf("unexpected session routing: %+v", session)
	}

	var resp map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["answer"] != "The retention period is 7 years." {
		t.Fatalf("unexpected answer: %v", resp["answer"])
	}
}

func TestChatDeniedMapsTo403(t *testing.T) {
	fx := newRouterFixture(t)
	fx.chat.err = domain.WrapError(domain.ErrAuthorizationDenied, "authorize", errors.New("role ruser cannot open dual sessions"))
	token := fx.loginToken(t, "guest")

	body, _ := json.Marshal(map[string]string{"conversation_id": "c1", "mode": "dual", "message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestChatRejectsUnknownMode(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "alice")

	body, _ := json.Marshal(map[string]string{"conversation_id": "c1", "mode": "hybrid", "message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", res.Code)
	}
	if len(fx.chat.sessions) != 0 {
		t.Fatalf("expected no chat call for invalid mode")
	}
}

func TestSecureUploadRequiresAdmin(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "alice")

	req := newUploadRequest(t, "report.pdf", "secure")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin secure upload, got %d", res.Code)
	}
	if len(fx.ingest.partitions) != 0 {
		t.Fatalf("expected no ingest call")
	}
}

func TestSecureUploadAcceptedForAdmin(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "root")

	req := newUploadRequest(t, "report.pdf", "secure")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(fx.ingest.partitions) != 1 || fx.ingest.partitions[0] != domain.PartitionSecure {
		t.Fatalf("expected secure ingest call, got %v", fx.ingest.partitions)
	}
}

func TestSecureDocumentHiddenFromRestrictedUser(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.loginToken(t, "guest")

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/d-secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestHistoryReturnsMessages(t *testing.T) {
	fx := newRouterFixture(t)
	fx.chat.history = []domain.ChatMessage{
		{Role: domain.MessageRoleUser, Content: "hi"},
		{Role: domain.MessageRoleAssistant, Content: "hello"},
	}
	token := fx.loginToken(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/history?conversation_id=c1&mode=public", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(resp.Messages))
	}
}

func newUploadRequest(t *testing.T, filename, partition string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(fw, "content")
	if err := mw.WriteField("partition", partition); err != nil {
		t.Fatalf("write partition field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(buf.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
