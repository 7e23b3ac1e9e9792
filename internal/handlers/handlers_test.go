package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/mocks"
	"pairchat/internal/models"
	"pairchat/internal/permissions"
	"pairchat/internal/repositories"
)

type testDeps struct {
	friends  *mocks.FriendServiceMock
	gate     *mocks.PermissionCheckerMock
	messages *mocks.MessageServiceMock
}

func setupRouter() (*gin.Engine, testDeps) {
	gin.SetMode(gin.TestMode)
	deps := testDeps{
		friends:  new(mocks.FriendServiceMock),
		gate:     new(mocks.PermissionCheckerMock),
		messages: new(mocks.MessageServiceMock),
	}
	r := gin.New()
	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	RegisterRoutes(api,
		NewUserHandler(deps.friends, deps.gate, zap.NewNop()),
		NewMessageHandler(deps.messages, zap.NewNop()),
	)
	return r, deps
}

func serve(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListFriendsSuccess(t *testing.T) {
	r, deps := setupRouter()
	deps.friends.On("ListFriends", mock.Anything, "u1").
		Return([]models.UserSummary{{ID: "u2", Name: "Bea"}}, nil).Once()

	rec := serve(r, http.MethodGet, "/api/users/friends", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Friends []models.UserSummary `json:"friends"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Friends, 1)
	assert.Equal(t, "u2", resp.Friends[0].ID)
	deps.friends.AssertExpectations(t)
}

func TestListBlockedServiceError(t *testing.T) {
	r, deps := setupRouter()
	deps.friends.On("ListBlocked", mock.Anything, "u1").
		Return(([]models.UserSummary)(nil), assert.AnError).Once()

	rec := serve(r, http.MethodGet, "/api/users/blocked", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to load blocked users"}`, rec.Body.String())
	deps.friends.AssertExpectations(t)
}

func TestUpdateStatus(t *testing.T) {
	r, deps := setupRouter()
	deps.friends.On("UpdateStatus", mock.Anything, "u1", "away").
		Return(events.UserStatusPayload{UserID: "u1", Status: models.StatusAway}, nil).Once()
	deps.friends.On("UpdateStatus", mock.Anything, "u1", "sleepy").
		Return(events.UserStatusPayload{}, errs.Validation("invalid status")).Once()

	rec := serve(r, http.MethodPatch, "/api/users/status", []byte(`{"status":"away"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, http.MethodPatch, "/api/users/status", []byte(`{"status":"sleepy"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPatch, "/api/users/status", []byte(`{"status":true}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	deps.friends.AssertExpectations(t)
}

func TestPermissionDeniedCarriesCode(t *testing.T) {
	r, deps := setupRouter()
	deps.gate.On("Permission", mock.Anything, "u1", "u2").
		Return(permissions.Permission{Status: permissions.StatusBlocked, BlockedBy: "u2"}, nil).Once()
	deps.gate.On("Permission", mock.Anything, "u1", "ghost").
		Return(permissions.Permission{}, repositories.ErrUserNotFound).Once()

	rec := serve(r, http.MethodGet, "/api/users/u2/permission", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perm permissions.Permission
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&perm))
	assert.False(t, perm.CanChat)
	assert.Equal(t, "u2", perm.BlockedBy)

	rec = serve(r, http.MethodGet, "/api/users/ghost/permission", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	deps.gate.AssertExpectations(t)
}

func TestHistory(t *testing.T) {
	r, deps := setupRouter()
	deps.messages.On("History", mock.Anything, "u1", "u1_u2", 20).
		Return(events.MessagesLoadedPayload{ChatID: "u1_u2", Messages: []models.Message{{ID: "m1"}}}, nil).Once()
	deps.messages.On("History", mock.Anything, "u1", "u2_u3", 0).
		Return(events.MessagesLoadedPayload{}, &permissions.DeniedError{Code: permissions.CodeUserBlocked}).Once()

	rec := serve(r, http.MethodGet, "/api/messages/u1_u2?limit=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, http.MethodGet, "/api/messages/u2_u3", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(permissions.CodeUserBlocked), body["code"])

	rec = serve(r, http.MethodGet, "/api/messages/u1_u2?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	deps.messages.AssertExpectations(t)
}

func TestDeleteHistoryAndMessage(t *testing.T) {
	r, deps := setupRouter()
	deps.messages.On("DeleteHistory", mock.Anything, "u1", "u1_u2").
		Return(events.ChatClearedPayload{ChatID: "u1_u2", Count: 4}, nil).Once()
	deps.messages.On("DeleteMessage", mock.Anything, "u1", "u1_u2", "m9").
		Return(events.MessageDeletedPayload{MessageID: "m9", ChatID: "u1_u2", Reason: events.ReasonSender}, nil).Once()
	deps.messages.On("DeleteMessage", mock.Anything, "u1", "u1_u2", "m8").
		Return(events.MessageDeletedPayload{}, errs.Forbidden("only the sender can delete a message")).Once()

	rec := serve(r, http.MethodDelete, "/api/messages/delete/u1_u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Chat history deleted","deletedCount":4}`, rec.Body.String())

	rec = serve(r, http.MethodDelete, "/api/messages/u1_u2/m9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, http.MethodDelete, "/api/messages/u1_u2/m8", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	deps.messages.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := serve(r, http.MethodGet, "/debug/audit-test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/health", Health)

	rec := serve(r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
