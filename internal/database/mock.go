package database

import (
	"github.com/stretchr/testify/mock"
)

type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockProjectRepository) GetProject(projectId string) (Project, error) {
	args := m.Called(projectId)
	return args.Get(0).(Project), args.Error(1)
}
func (m *MockProjectRepository) UpdateProject(params UpdateProjectParams) (Project, error) {
	args := m.Called(params)
	return args.Get(0).(Project), args.Error(1)
}
func (m *MockProjectRepository) UpdateTask(params UpdateTaskParams) (Task, error) {
	args := m.Called(params)
	return args.Get(0).(Task), args.Error(1)
}
func (m *MockProjectRepository) CreateMessage(params CreateMessageParams) (ChatMessage, error) {
	args := m.Called(params)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockProjectRepository) ListMessages(projectId string, limit int) ([]ChatMessage, error) {
	args := m.Called(projectId, limit)
	if msgs, ok := args.Get(0).([]ChatMessage); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
