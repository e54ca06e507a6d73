package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
	"github.com/oakcrm/quote-approval/internal/infrastructure/persistence/sqlite"
)

// UserRepository implements port.UserRepository on sqlite
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID returns the user with the given id, or nil when it does not exist
func (r *UserRepository) GetByID(ctx context.Context, id string) (*approval.User, error) {
	query := `SELECT id, name, email, role FROM users WHERE id = ?`

	var u approval.User
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetByIDs returns the users for the given ids. Unknown ids are simply
// absent from the result.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*approval.User, error) {
	users := make([]*approval.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	query := fmt.Sprintf(
		`SELECT id, name, email, role FROM users WHERE id IN (%s)`,
		placeholders[:len(placeholders)-1],
	)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u approval.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
