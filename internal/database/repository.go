package database

type ProjectRepository interface {
	Ping() error
	GetProject(projectId string) (Project, error)
	UpdateProject(params UpdateProjectParams) (Project, error)
	UpdateTask(params UpdateTaskParams) (Task, error)
	CreateMessage(params CreateMessageParams) (ChatMessage, error)
	ListMessages(projectId string, limit int) ([]ChatMessage, error)
}
