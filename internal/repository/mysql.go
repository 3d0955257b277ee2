package repository

import (
	"context"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/model"
)

// userRow 对应表 users
type userRow struct {
	Username           string `gorm:"primaryKey;size:64"`
	PasswordHash       string `gorm:"size:255;not null"`
	Role               string `gorm:"size:16;not null"`
	Powerhouse         string `gorm:"size:128;not null;default:''"`
	MustChangePassword bool   `gorm:"not null;default:false"`
}

func (userRow) TableName() string { return "users" }

// powerhouseRow 对应表 powerhouses
// 子树和账户整体保存在 JSON 列中
type powerhouseRow struct {
	Name     string          `gorm:"primaryKey;size:128"`
	UID      string          `gorm:"size:64;not null;default:''"`
	Feeders  []model.Feeder  `gorm:"serializer:json;type:json;not null"`
	Accounts []model.Account `gorm:"serializer:json;type:json;not null"`
}

func (powerhouseRow) TableName() string { return "powerhouses" }

// MySQLStore 基于 GORM + MySQL 的存储
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore 连接数据库、设置连接池并自动迁移
func NewMySQLStore(ctx context.Context, mc config.MySQLConfig) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(mc.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, apperr.Unavailable("connect mysql", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperr.Unavailable("connect mysql", err)
	}
	sqlDB.SetMaxIdleConns(mc.MaxIdleConns)
	sqlDB.SetMaxOpenConns(mc.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(mc.MaxLifetime) * time.Second)

	return newGormStore(ctx, db)
}

func newGormStore(ctx context.Context, db *gorm.DB) (*MySQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&userRow{}, &powerhouseRow{}); err != nil {
		return nil, apperr.Unavailable("migrate mysql", err)
	}
	return &MySQLStore{db: db}, nil
}

// LoadAll 读取全部数据
func (s *MySQLStore) LoadAll(ctx context.Context) (*model.StoredSnapshot, error) {
	var users []userRow
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, apperr.Unavailable("load users", err)
	}
	var phs []powerhouseRow
	if err := s.db.WithContext(ctx).Order("name").Find(&phs).Error; err != nil {
		return nil, apperr.Unavailable("load powerhouses", err)
	}

	out := &model.StoredSnapshot{
		Users:       make([]model.StoredUser, 0, len(users)),
		Powerhouses: make([]model.Powerhouse, 0, len(phs)),
	}
	for _, u := range users {
		out.Users = append(out.Users, model.StoredUser{
			Username:           u.Username,
			PasswordHash:       u.PasswordHash,
			Role:               model.Role(u.Role),
			Powerhouse:         u.Powerhouse,
			MustChangePassword: u.MustChangePassword,
		})
	}
	for _, p := range phs {
		out.Powerhouses = append(out.Powerhouses, model.Powerhouse{
			UID: p.UID, Name: p.Name, Feeders: p.Feeders, Accounts: p.Accounts,
		})
	}
	sortSnapshot(out)
	return out, nil
}

// ReplaceAll 在一个事务内删除并重新写入
func (s *MySQLStore) ReplaceAll(ctx context.Context, users []model.StoredUser, powerhouses []model.Powerhouse) error {
	users, powerhouses, err := PrepareReplace(users, powerhouses)
	if err != nil {
		return err
	}

	userRows := make([]userRow, 0, len(users))
	for _, u := range users {
		userRows = append(userRows, userRow{
			Username:           u.Username,
			PasswordHash:       u.PasswordHash,
			Role:               string(u.Role),
			Powerhouse:         u.Powerhouse,
			MustChangePassword: u.MustChangePassword,
		})
	}
	phRows := make([]powerhouseRow, 0, len(powerhouses))
	for _, p := range powerhouses {
		phRows = append(phRows, powerhouseRow{Name: p.Name, UID: p.UID, Feeders: p.Feeders, Accounts: p.Accounts})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 整表删除需要显式允许
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&userRow{}).Error; err != nil {
			return err
		}
		if err := all.Delete(&powerhouseRow{}).Error; err != nil {
			return err
		}
		// GORM 对空切片的 Create 会报错
		if len(userRows) > 0 {
			if err := tx.Create(&userRows).Error; err != nil {
				return err
			}
		}
		if len(phRows) > 0 {
			if err := tx.Create(&phRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Unavailable("replace snapshot", err)
	}
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Unavailable("ping mysql", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Unavailable("ping mysql", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
