package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

var ErrUserNotFound = errors.New("user not found")
var ErrUsernameTaken = errors.New("username already taken")

// 新用户按注册顺序轮流分配的光标颜色
var userColors = []string{
	"#FFA07A", "#98D8C8", "#F7DC6F", "#85C1E9",
	"#D7BDE2", "#F8B195", "#A3E4D7", "#F5B7B1",
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

func (s *UserStore) CreateUser(ctx context.Context, username string, passwordHash []byte) (uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	color := userColors[count%len(userColors)]

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, color, created_at, updated_at) VALUES (?, ?, ?, NOW(), NOW())`,
		username, passwordHash, color,
	)
	if err != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	id, _ := res.LastInsertId()
	return uint64(id), nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, color FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, userID uint64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, color FROM users WHERE id = ?`,
		userID,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
