package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	powerhouse TEXT NOT NULL DEFAULT '',
	must_change_password INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS powerhouses (
	name TEXT PRIMARY KEY,
	uid TEXT NOT NULL DEFAULT '',
	feeders TEXT NOT NULL,
	accounts TEXT NOT NULL
);`

// SQLiteStore 基于 modernc sqlite 的存储
// 电站的 feeders / accounts 以 JSON 文本保存
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 打开（必要时创建）数据库文件并建表
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "powerhouse.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Unavailable("open sqlite", err)
	}
	// sqlite 同一时间只允许一个写连接
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, apperr.Unavailable("create sqlite schema", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// LoadAll 读取全部数据
func (s *SQLiteStore) LoadAll(ctx context.Context) (*model.StoredSnapshot, error) {
	out := &model.StoredSnapshot{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password_hash, role, powerhouse, must_change_password FROM users ORDER BY username`)
	if err != nil {
		return nil, apperr.Unavailable("load users", err)
	}
	for rows.Next() {
		var u model.StoredUser
		var role string
		if err := rows.Scan(&u.Username, &u.PasswordHash, &role, &u.Powerhouse, &u.MustChangePassword); err != nil {
			_ = rows.Close()
			return nil, apperr.Unavailable("scan user", err)
		}
		u.Role = model.Role(role)
		out.Users = append(out.Users, u)
	}
	if err := rows.Close(); err != nil {
		return nil, apperr.Unavailable("load users", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT name, uid, feeders, accounts FROM powerhouses ORDER BY name`)
	if err != nil {
		return nil, apperr.Unavailable("load powerhouses", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var p model.Powerhouse
		var feeders, accounts string
		if err := rows.Scan(&p.Name, &p.UID, &feeders, &accounts); err != nil {
			return nil, apperr.Unavailable("scan powerhouse", err)
		}
		if err := json.Unmarshal([]byte(feeders), &p.Feeders); err != nil {
			return nil, fmt.Errorf("decode feeders of %s: %w", p.Name, err)
		}
		if err := json.Unmarshal([]byte(accounts), &p.Accounts); err != nil {
			return nil, fmt.Errorf("decode accounts of %s: %w", p.Name, err)
		}
		out.Powerhouses = append(out.Powerhouses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("load powerhouses", err)
	}
	sortSnapshot(out)
	return out, nil
}

// ReplaceAll 在一个事务内删除并重新写入
func (s *SQLiteStore) ReplaceAll(ctx context.Context, users []model.StoredUser, powerhouses []model.Powerhouse) (retErr error) {
	users, powerhouses, err := PrepareReplace(users, powerhouses)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Unavailable("begin replace", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return apperr.Unavailable("delete users", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM powerhouses`); err != nil {
		return apperr.Unavailable("delete powerhouses", err)
	}
	for _, u := range users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users(username, password_hash, role, powerhouse, must_change_password) VALUES(?,?,?,?,?)`,
			u.Username, u.PasswordHash, string(u.Role), u.Powerhouse, u.MustChangePassword); err != nil {
			return apperr.Unavailable("insert user", err)
		}
	}
	for _, p := range powerhouses {
		feeders, err := json.Marshal(p.Feeders)
		if err != nil {
			return err
		}
		accounts, err := json.Marshal(p.Accounts)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO powerhouses(name, uid, feeders, accounts) VALUES(?,?,?,?)`,
			p.Name, p.UID, string(feeders), string(accounts)); err != nil {
			return apperr.Unavailable("insert powerhouse", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Unavailable("commit replace", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Unavailable("ping sqlite", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *SQLiteStore) Path() string { return s.path }
