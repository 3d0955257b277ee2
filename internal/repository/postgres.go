package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS phm_users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	powerhouse TEXT NOT NULL DEFAULT '',
	must_change_password BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS phm_powerhouses (
	name TEXT PRIMARY KEY,
	uid TEXT NOT NULL DEFAULT '',
	feeders JSONB NOT NULL,
	accounts JSONB NOT NULL
);`

// PostgresStore 基于 pgxpool 的存储，feeders / accounts 使用 JSONB 列
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建连接池、检查连通性并建表
// 参数:
//   - dsn: postgres 连接串
//   - pc: 连接池大小
func NewPostgresStore(ctx context.Context, dsn string, pc config.PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = pc.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperr.Unavailable("create postgres pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperr.Unavailable("ping postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, apperr.Unavailable("create postgres schema", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// LoadAll 读取全部数据
func (s *PostgresStore) LoadAll(ctx context.Context) (*model.StoredSnapshot, error) {
	out := &model.StoredSnapshot{}

	rows, err := s.pool.Query(ctx,
		`SELECT username, password_hash, role, powerhouse, must_change_password FROM phm_users ORDER BY username`)
	if err != nil {
		return nil, apperr.Unavailable("load users", err)
	}
	for rows.Next() {
		var u model.StoredUser
		var role string
		if err := rows.Scan(&u.Username, &u.PasswordHash, &role, &u.Powerhouse, &u.MustChangePassword); err != nil {
			rows.Close()
			return nil, apperr.Unavailable("scan user", err)
		}
		u.Role = model.Role(role)
		out.Users = append(out.Users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("load users", err)
	}

	// pgx 直接把 JSONB 解码到切片
	rows, err = s.pool.Query(ctx, `SELECT name, uid, feeders, accounts FROM phm_powerhouses ORDER BY name`)
	if err != nil {
		return nil, apperr.Unavailable("load powerhouses", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Powerhouse
		if err := rows.Scan(&p.Name, &p.UID, &p.Feeders, &p.Accounts); err != nil {
			return nil, apperr.Unavailable("scan powerhouse", err)
		}
		out.Powerhouses = append(out.Powerhouses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("load powerhouses", err)
	}
	sortSnapshot(out)
	return out, nil
}

// ReplaceAll 在一个事务内删除并批量写入
func (s *PostgresStore) ReplaceAll(ctx context.Context, users []model.StoredUser, powerhouses []model.Powerhouse) error {
	users, powerhouses, err := PrepareReplace(users, powerhouses)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM phm_users`)
		batch.Queue(`DELETE FROM phm_powerhouses`)
		for _, u := range users {
			batch.Queue(`INSERT INTO phm_users(username, password_hash, role, powerhouse, must_change_password) VALUES($1,$2,$3,$4,$5)`,
				u.Username, u.PasswordHash, string(u.Role), u.Powerhouse, u.MustChangePassword)
		}
		for _, p := range powerhouses {
			batch.Queue(`INSERT INTO phm_powerhouses(name, uid, feeders, accounts) VALUES($1,$2,$3,$4)`,
				p.Name, p.UID, p.Feeders, p.Accounts)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return apperr.Unavailable("replace snapshot", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperr.Unavailable("ping postgres", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
