package database

import "time"

type User struct {
	Id        string
	Email     string
	Name      string
	Role      string
	CreatedAt time.Time
}

type Project struct {
	Id          string
	Title       string
	Description string
	Status      string
	OwnerId     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Task struct {
	Id          string
	Title       string
	Description string
	Status      string
	Priority    string
	ProjectId   string
	AssigneeId  string
	CreatedBy   string
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ChatMessage struct {
	Id        string
	Content   string
	UserId    string
	ProjectId string
	User      User
	CreatedAt time.Time
}

// UpdateProjectParams carries a partial update; nil fields are left unchanged.
type UpdateProjectParams struct {
	ProjectId   string
	OwnerId     string
	Title       *string
	Description *string
	Status      *string
}

// UpdateTaskParams carries a partial update; nil fields are left unchanged.
type UpdateTaskParams struct {
	TaskId      string
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssigneeId  *string
}

type CreateMessageParams struct {
	ProjectId string
	UserId    string
	Content   string
}
