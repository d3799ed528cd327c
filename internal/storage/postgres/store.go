package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"publier/backend/internal/config"
	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// Store 基于 GORM 的持久化存储，支持 PostgreSQL 与 MySQL
type Store struct {
	db     *gorm.DB
	sqlDB *sql.DB
	pool  *pgxpool.Pool // 仅 PostgreSQL
	log   *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open 按配置打开数据库
//
// PostgreSQL 通过 pgxpool 建立连接池，GORM 复用同一个池；MySQL 使用 GORM 自带驱动。
func Open(cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	switch cfg.Type {
	case config.DatabasePostgres:
		pool, err := openPool(cfg, log)
		if err != nil {
			return nil, err
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: sqlDB}), cfg, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		store.pool = pool
		return store, nil
	case config.DatabaseMySQL:
		return NewStoreWithDialector(mysql.Open(cfg.DSN), cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	// 配置 GORM
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent), // 静默模式
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	// 连接数据库
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db, sqlDB: sqlDB, log: log}

	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info("database store ready", zap.String("type", cfg.Type), zap.Bool("auto_migrate", cfg.AutoMigrate))
	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.EmailVerificationToken{},
		&domain.App{},
		&domain.APIKey{},
		&domain.Webhook{},
		&domain.WebhookDelivery{},
		&domain.Post{},
	)
}

// Health 检查数据库连接
func (s *Store) Health(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return s.sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	err := s.sqlDB.Close()
	if s.pool != nil {
		closePool(s.pool, s.log)
	}
	return err
}

// translate 将 GORM 错误转换为存储层哨兵错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrConflict
	}
	return err
}

// affected 更新或删除未命中任何行时返回 ErrNotFound
func affected(result *gorm.DB) error {
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ========== User Repository ==========

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateLastLogin 更新最后登录时间
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return affected(s.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at))
}

// ========== Session Repository ==========

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	return translate(s.db.WithContext(ctx).Create(session).Error)
}

func (s *Store) GetSessionByHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&session).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	return affected(s.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Update("last_used_at", at))
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return affected(s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Session{}))
}

// DeleteExpiredSessions 删除过期会话，返回删除数量
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// ========== API Key Repository ==========

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return translate(s.db.WithContext(ctx).Create(key).Error)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := s.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&key).Error; err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, appID string) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	err := s.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("created_at DESC, id DESC").
		Find(&keys).Error
	return keys, err
}

func (s *Store) RevokeAPIKey(ctx context.Context, appID, keyID string) error {
	return affected(s.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ? AND app_id = ?", keyID, appID).
		Update("revoked", true))
}

func (s *Store) DeleteAPIKey(ctx context.Context, appID, keyID string) error {
	return affected(s.db.WithContext(ctx).
		Where("id = ? AND app_id = ?", keyID, appID).
		Delete(&domain.APIKey{}))
}

func (s *Store) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	return affected(s.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ?", keyID).
		Update("last_used_at", at))
}
