// ABOUTME: SQLite persistence for foodlogd via gorm, with goose-managed schema.
// ABOUTME: Every table query is scoped to a single user id.
package main

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/bhavik/food-log/foodlog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	errDuplicateEmail = errors.New("email already registered")
	errNotFound       = errors.New("not found")
)

// UserModel is an account.
type UserModel struct {
	ID           string `gorm:"column:id;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Created      string `gorm:"column:created_at;not null"`
}

func (UserModel) TableName() string { return "users" }

// RefreshTokenModel is a single-use refresh token, stored hashed.
type RefreshTokenModel struct {
	TokenHash string `gorm:"column:token_hash;primaryKey"`
	UserID    string `gorm:"column:user_id;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;not null"`
}

func (RefreshTokenModel) TableName() string { return "refresh_tokens" }

// FoodLogModel is a food_logs row.
type FoodLogModel struct {
	Seq      uint   `gorm:"column:seq;primaryKey;autoIncrement"`
	ID       string `gorm:"column:id;uniqueIndex;not null"`
	UserID   string `gorm:"column:user_id;not null"`
	LoggedAt string `gorm:"column:logged_at;not null"`
	MealType string `gorm:"column:meal_type;not null"`
	ItemName string `gorm:"column:item_name;not null"`
	Emoji    string `gorm:"column:emoji"`
	IsCustom bool   `gorm:"column:is_custom"`
	Created  string `gorm:"column:created_at;not null"`
}

func (FoodLogModel) TableName() string { return foodlog.TableFoodLogs }

func (m FoodLogModel) row() foodlog.FoodLogRow {
	return foodlog.FoodLogRow{
		ID:       m.ID,
		UserID:   m.UserID,
		LoggedAt: m.LoggedAt,
		MealType: foodlog.MealType(m.MealType),
		ItemName: m.ItemName,
		Emoji:    m.Emoji,
		IsCustom: m.IsCustom,
	}
}

// UserFoodItemModel is a user_food_items row.
type UserFoodItemModel struct {
	Seq          uint     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID           string   `gorm:"column:id;uniqueIndex;not null"`
	UserID       string   `gorm:"column:user_id;not null"`
	CategoryType string   `gorm:"column:category_type;not null"`
	Name         string   `gorm:"column:name;not null"`
	Emoji        string   `gorm:"column:emoji"`
	Calories     *float64 `gorm:"column:calories"`
	Created      string   `gorm:"column:created_at;not null"`
}

func (UserFoodItemModel) TableName() string { return foodlog.TableUserItems }

func (m UserFoodItemModel) row() foodlog.UserFoodItemRow {
	return foodlog.UserFoodItemRow{
		ID:           m.ID,
		UserID:       m.UserID,
		CategoryType: foodlog.MealType(m.CategoryType),
		Name:         m.Name,
		Emoji:        m.Emoji,
		Calories:     m.Calories,
		CreatedAt:    m.Created,
	}
}

// rowFilter is the subset of PostgREST filtering foodlogd understands.
type rowFilter struct {
	ID     string // id=eq.
	UserID string // user_id=eq. (on top of the caller's own scope)
	Order  string // whitelisted column
	Desc   bool
}

// Store is the persistence surface the handlers run against. Every table
// method is scoped to userID.
type Store interface {
	CreateUser(ctx context.Context, email, hash string) (UserModel, error)
	UserByEmail(ctx context.Context, email string) (UserModel, error)
	UserByID(ctx context.Context, id string) (UserModel, error)

	SaveRefreshToken(ctx context.Context, userID, hash string, expires time.Time) error
	TakeRefreshToken(ctx context.Context, hash string) (RefreshTokenModel, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)

	ListFoodLogs(ctx context.Context, userID string, f rowFilter) ([]FoodLogModel, error)
	InsertFoodLog(ctx context.Context, m *FoodLogModel) error
	DeleteFoodLogs(ctx context.Context, userID string, f rowFilter) (int64, error)

	ListUserItems(ctx context.Context, userID string, f rowFilter) ([]UserFoodItemModel, error)
	InsertUserItem(ctx context.Context, m *UserFoodItemModel) error
	RenameUserItems(ctx context.Context, userID string, f rowFilter, name string) (int64, error)
	DeleteUserItems(ctx context.Context, userID string, f rowFilter) (int64, error)

	Close() error
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*PBStore)(nil)
)

// Repository is the gorm-backed Store.
type Repository struct {
	db *gorm.DB
}

// OpenDB opens the SQLite database through the pure-Go driver.
func OpenDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	goose.SetBaseFS(migrationsFS)
	return goose.UpContext(ctx, sqlDB, "migrations")
}

// NewRepository wraps an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nowISO() string {
	return foodlog.FormatTimestamp(time.Now().UnixMilli())
}

// users

func (r *Repository) CreateUser(ctx context.Context, email, hash string) (UserModel, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return UserModel{}, err
	}
	if count > 0 {
		return UserModel{}, errDuplicateEmail
	}
	u := UserModel{ID: uuid.NewString(), Email: email, PasswordHash: hash, Created: nowISO()}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		return UserModel{}, err
	}
	return u, nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (UserModel, error) {
	return r.findUser(ctx, "email = ?", email)
}

func (r *Repository) UserByID(ctx context.Context, id string) (UserModel, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (UserModel, error) {
	var u UserModel
	err := r.db.WithContext(ctx).Where(where, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserModel{}, errNotFound
	}
	return u, err
}

// refresh tokens

func (r *Repository) SaveRefreshToken(ctx context.Context, userID, hash string, expires time.Time) error {
	return r.db.WithContext(ctx).Create(&RefreshTokenModel{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expires.Unix(),
	}).Error
}

// TakeRefreshToken loads and deletes a refresh token in one transaction so it
// can be used only once.
func (r *Repository) TakeRefreshToken(ctx context.Context, hash string) (RefreshTokenModel, error) {
	var tok RefreshTokenModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_hash = ?", hash).First(&tok).Error; err != nil {
			return err
		}
		return tx.Delete(&RefreshTokenModel{}, "token_hash = ?", hash).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefreshTokenModel{}, errNotFound
	}
	return tok, err
}

func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now.Unix()).Delete(&RefreshTokenModel{})
	return res.RowsAffected, res.Error
}

// food_logs

func (r *Repository) ListFoodLogs(ctx context.Context, userID string, f rowFilter) ([]FoodLogModel, error) {
	rows := make([]FoodLogModel, 0)
	err := r.scoped(ctx, userID, f).Find(&rows).Error
	return rows, err
}

func (r *Repository) InsertFoodLog(ctx context.Context, m *FoodLogModel) error {
	m.ID = uuid.NewString()
	m.Created = nowISO()
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) DeleteFoodLogs(ctx context.Context, userID string, f rowFilter) (int64, error) {
	res := r.scoped(ctx, userID, f).Delete(&FoodLogModel{})
	return res.RowsAffected, res.Error
}

// user_food_items

func (r *Repository) ListUserItems(ctx context.Context, userID string, f rowFilter) ([]UserFoodItemModel, error) {
	rows := make([]UserFoodItemModel, 0)
	err := r.scoped(ctx, userID, f).Find(&rows).Error
	return rows, err
}

func (r *Repository) InsertUserItem(ctx context.Context, m *UserFoodItemModel) error {
	m.ID = uuid.NewString()
	m.Created = nowISO()
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) RenameUserItems(ctx context.Context, userID string, f rowFilter, name string) (int64, error) {
	res := r.scoped(ctx, userID, f).Model(&UserFoodItemModel{}).Update("name", name)
	return res.RowsAffected, res.Error
}

func (r *Repository) DeleteUserItems(ctx context.Context, userID string, f rowFilter) (int64, error) {
	res := r.scoped(ctx, userID, f).Delete(&UserFoodItemModel{})
	return res.RowsAffected, res.Error
}

// scoped applies the caller's row-level scope plus any request filters.
func (r *Repository) scoped(ctx context.Context, userID string, f rowFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ID != "" {
		q = q.Where("id = ?", f.ID)
	}
	if f.Order != "" {
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		q = q.Order(f.Order + " " + dir).Order("seq " + dir)
	}
	return q
}
