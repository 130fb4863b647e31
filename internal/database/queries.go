package database

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

const (
	projectColumns = "id, title, COALESCE(description, ''), status, owner_id, created_at, updated_at"
	taskColumns    = "id, title, COALESCE(description, ''), status, priority, project_id, " +
		"COALESCE(assignee_id::text, ''), created_by, due_date, created_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	err := row.Scan(
		&p.Id,
		&p.Title,
		&p.Description,
		&p.Status,
		&p.OwnerId,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	return p, err
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t   Task
		due sql.NullTime
	)
	err := row.Scan(
		&t.Id,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.ProjectId,
		&t.AssigneeId,
		&t.CreatedBy,
		&due,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if due.Valid {
		t.DueDate = &due.Time
	}

	return t, err
}

func scanMessage(row rowScanner) (ChatMessage, error) {
	var m ChatMessage
	err := row.Scan(
		&m.Id,
		&m.Content,
		&m.UserId,
		&m.ProjectId,
		&m.CreatedAt,
		&m.User.Id,
		&m.User.Name,
		&m.User.Email,
	)

	return m, err
}

func (db *PgProjectRepository) GetProject(projectId string) (Project, error) {
	row := db.conn.QueryRow(
		"SELECT "+projectColumns+" FROM projects WHERE id = $1 LIMIT 1",
		projectId,
	)

	return scanProject(row)
}

// UpdateProject applies a partial update. Only the owner may update a
// project; a non-owner gets sql.ErrNoRows.
func (db *PgProjectRepository) UpdateProject(params UpdateProjectParams) (Project, error) {
	row := db.conn.QueryRow(
		"UPDATE projects SET "+
			"title = COALESCE($3, title), "+
			"description = COALESCE($4, description), "+
			"status = COALESCE($5, status), "+
			"updated_at = $6 "+
			"WHERE id = $1 AND owner_id = $2 RETURNING "+projectColumns,
		params.ProjectId,
		params.OwnerId,
		params.Title,
		params.Description,
		params.Status,
		time.Now().UTC(),
	)

	return scanProject(row)
}

func (db *PgProjectRepository) UpdateTask(params UpdateTaskParams) (Task, error) {
	row := db.conn.QueryRow(
		"UPDATE tasks SET "+
			"title = COALESCE($2, title), "+
			"description = COALESCE($3, description), "+
			"status = COALESCE($4, status), "+
			"priority = COALESCE($5, priority), "+
			"assignee_id = COALESCE($6, assignee_id), "+
			"updated_at = $7 "+
			"WHERE id = $1 RETURNING "+taskColumns,
		params.TaskId,
		params.Title,
		params.Description,
		params.Status,
		params.Priority,
		params.AssigneeId,
		time.Now().UTC(),
	)

	return scanTask(row)
}

func (db *PgProjectRepository) CreateMessage(params CreateMessageParams) (ChatMessage, error) {
	row := db.conn.QueryRow(`
		WITH m AS (
			INSERT INTO chat_messages (content, user_id, project_id, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, content, user_id, project_id, created_at
		)
		SELECT m.id, m.content, m.user_id, m.project_id, m.created_at, u.id, u.name, u.email
		FROM m JOIN users u ON u.id = m.user_id`,
		params.Content,
		params.UserId,
		params.ProjectId,
		time.Now().UTC(),
	)

	msg, err := scanMessage(row)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// ListMessages returns the latest limit messages of a project in
// chronological order.
func (db *PgProjectRepository) ListMessages(projectId string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	rows, err := db.conn.Query(`
		SELECT * FROM (
			SELECT m.id, m.content, m.user_id, m.project_id, m.created_at,
				u.id AS author_id, u.name AS author_name, u.email AS author_email
			FROM chat_messages m JOIN users u ON u.id = m.user_id
			WHERE m.project_id = $1
			ORDER BY m.created_at DESC
			LIMIT $2
		) latest ORDER BY created_at ASC`,
		projectId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
