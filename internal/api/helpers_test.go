package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/project-rooms/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishChatMessage(projectId string, msg types.ChatMessage) {
	m.Called(projectId, msg)
}
func (m *MockPublisher) PublishTaskUpdate(projectId string, task types.Task) {
	m.Called(projectId, task)
}
func (m *MockPublisher) PublishProjectUpdate(projectId string, project types.Project) {
	m.Called(projectId, project)
}
func (m *MockPublisher) OnlineUsers() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return token
}

func userToken(t *testing.T, userId string) string {
	return signToken(t, jwt.SigningMethodHS256, testSigningKey, jwt.MapClaims{
		userIdClaim: userId,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
}
