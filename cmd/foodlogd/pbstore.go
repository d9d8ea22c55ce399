// ABOUTME: PocketBase-backed Store for foodlogd.
// ABOUTME: Maps accounts, refresh tokens and the food tables onto PocketBase collections.

package main

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"github.com/bhavik/food-log/cmd/foodlogd/pbmigrations"
	"github.com/bhavik/food-log/foodlog"
)

// pbMaxRows caps a single collection scan.
const pbMaxRows = 10000

// createdLayout sorts lexically in insertion order.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// PBStore keeps foodlogd data in PocketBase collections.
type PBStore struct {
	app core.App

	mu   sync.Mutex
	last time.Time
}

// NewPBStore wraps a PocketBase app whose collections already exist.
func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

// Close is a no-op; PocketBase owns the database lifecycle.
func (p *PBStore) Close() error { return nil }

// created returns a strictly increasing creation stamp.
func (p *PBStore) created() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(p.last) {
		now = p.last.Add(time.Nanosecond)
	}
	p.last = now
	return now.Format(createdLayout)
}

// createdMillis renders a stored creation stamp the way the REST surface does.
func createdMillis(s string) string {
	t, err := time.Parse(createdLayout, s)
	if err != nil {
		return s
	}
	return foodlog.FormatTimestamp(t.UnixMilli())
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return err
}

func (p *PBStore) newRecord(app core.App, collection string) (*core.Record, error) {
	col, err := app.FindCollectionByNameOrId(collection)
	if err != nil {
		return nil, err
	}
	return core.NewRecord(col), nil
}

// accounts

func (p *PBStore) CreateUser(_ context.Context, email, hash string) (UserModel, error) {
	var u UserModel
	err := p.app.RunInTransaction(func(txApp core.App) error {
		_, err := txApp.FindFirstRecordByFilter(pbmigrations.Accounts, "email = {:email}", map[string]any{"email": email})
		if err == nil {
			return errDuplicateEmail
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		rec, err := p.newRecord(txApp, pbmigrations.Accounts)
		if err != nil {
			return err
		}
		created := p.created()
		rec.Set("email", email)
		rec.Set("password_hash", hash)
		rec.Set("created_at", created)
		if err := txApp.Save(rec); err != nil {
			return err
		}
		u = UserModel{ID: rec.Id, Email: email, PasswordHash: hash, Created: createdMillis(created)}
		return nil
	})
	return u, err
}

func (p *PBStore) UserByEmail(_ context.Context, email string) (UserModel, error) {
	rec, err := p.app.FindFirstRecordByFilter(pbmigrations.Accounts, "email = {:email}", map[string]any{"email": email})
	if err != nil {
		return UserModel{}, notFound(err)
	}
	return accountModel(rec), nil
}

func (p *PBStore) UserByID(_ context.Context, id string) (UserModel, error) {
	rec, err := p.app.FindRecordById(pbmigrations.Accounts, id)
	if err != nil {
		return UserModel{}, notFound(err)
	}
	return accountModel(rec), nil
}

func accountModel(rec *core.Record) UserModel {
	return UserModel{
		ID:           rec.Id,
		Email:        rec.GetString("email"),
		PasswordHash: rec.GetString("password_hash"),
		Created:      createdMillis(rec.GetString("created_at")),
	}
}

// refresh tokens

func (p *PBStore) SaveRefreshToken(_ context.Context, userID, hash string, expires time.Time) error {
	rec, err := p.newRecord(p.app, pbmigrations.RefreshTokens)
	if err != nil {
		return err
	}
	rec.Set("token_hash", hash)
	rec.Set("user_id", userID)
	rec.Set("expires_at", expires.Unix())
	return p.app.Save(rec)
}

func (p *PBStore) TakeRefreshToken(_ context.Context, hash string) (RefreshTokenModel, error) {
	var tok RefreshTokenModel
	err := p.app.RunInTransaction(func(txApp core.App) error {
		rec, err := txApp.FindFirstRecordByFilter(pbmigrations.RefreshTokens, "token_hash = {:hash}", map[string]any{"hash": hash})
		if err != nil {
			return err
		}
		tok = RefreshTokenModel{
			TokenHash: hash,
			UserID:    rec.GetString("user_id"),
			ExpiresAt: int64(rec.GetFloat("expires_at")),
		}
		return txApp.Delete(rec)
	})
	if err != nil {
		return RefreshTokenModel{}, notFound(err)
	}
	return tok, nil
}

func (p *PBStore) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := p.app.RunInTransaction(func(txApp core.App) error {
		recs, err := txApp.FindRecordsByFilter(pbmigrations.RefreshTokens, "expires_at < {:now}", "", pbMaxRows, 0, map[string]any{"now": now.Unix()})
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := txApp.Delete(rec); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// food_logs

func (p *PBStore) ListFoodLogs(_ context.Context, userID string, f rowFilter) ([]FoodLogModel, error) {
	recs, err := p.find(p.app, pbmigrations.FoodLogs, userID, f)
	if err != nil {
		return nil, err
	}
	rows := make([]FoodLogModel, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, FoodLogModel{
			ID:       rec.Id,
			UserID:   rec.GetString("user_id"),
			LoggedAt: rec.GetString("logged_at"),
			MealType: rec.GetString("meal_type"),
			ItemName: rec.GetString("item_name"),
			Emoji:    rec.GetString("emoji"),
			IsCustom: rec.GetBool("is_custom"),
			Created:  createdMillis(rec.GetString("created_at")),
		})
	}
	return rows, nil
}

func (p *PBStore) InsertFoodLog(_ context.Context, m *FoodLogModel) error {
	rec, err := p.newRecord(p.app, pbmigrations.FoodLogs)
	if err != nil {
		return err
	}
	created := p.created()
	rec.Set("user_id", m.UserID)
	rec.Set("logged_at", m.LoggedAt)
	rec.Set("meal_type", m.MealType)
	rec.Set("item_name", m.ItemName)
	rec.Set("emoji", m.Emoji)
	rec.Set("is_custom", m.IsCustom)
	rec.Set("created_at", created)
	if err := p.app.Save(rec); err != nil {
		return err
	}
	m.ID = rec.Id
	m.Created = createdMillis(created)
	return nil
}

func (p *PBStore) DeleteFoodLogs(_ context.Context, userID string, f rowFilter) (int64, error) {
	return p.deleteWhere(pbmigrations.FoodLogs, userID, f)
}

// user_food_items

func (p *PBStore) ListUserItems(_ context.Context, userID string, f rowFilter) ([]UserFoodItemModel, error) {
	recs, err := p.find(p.app, pbmigrations.UserFoodItems, userID, f)
	if err != nil {
		return nil, err
	}
	rows := make([]UserFoodItemModel, 0, len(recs))
	for _, rec := range recs {
		m := UserFoodItemModel{
			ID:           rec.Id,
			UserID:       rec.GetString("user_id"),
			CategoryType: rec.GetString("category_type"),
			Name:         rec.GetString("name"),
			Emoji:        rec.GetString("emoji"),
			Created:      createdMillis(rec.GetString("created_at")),
		}
		if rec.GetBool("has_calories") {
			c := rec.GetFloat("calories")
			m.Calories = &c
		}
		rows = append(rows, m)
	}
	return rows, nil
}

func (p *PBStore) InsertUserItem(_ context.Context, m *UserFoodItemModel) error {
	rec, err := p.newRecord(p.app, pbmigrations.UserFoodItems)
	if err != nil {
		return err
	}
	created := p.created()
	rec.Set("user_id", m.UserID)
	rec.Set("category_type", m.CategoryType)
	rec.Set("name", m.Name)
	rec.Set("emoji", m.Emoji)
	if m.Calories != nil {
		rec.Set("calories", *m.Calories)
		rec.Set("has_calories", true)
	}
	rec.Set("created_at", created)
	if err := p.app.Save(rec); err != nil {
		return err
	}
	m.ID = rec.Id
	m.Created = createdMillis(created)
	return nil
}

func (p *PBStore) RenameUserItems(_ context.Context, userID string, f rowFilter, name string) (int64, error) {
	var n int64
	err := p.app.RunInTransaction(func(txApp core.App) error {
		recs, err := p.find(txApp, pbmigrations.UserFoodItems, userID, f)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			rec.Set("name", name)
			if err := txApp.Save(rec); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (p *PBStore) DeleteUserItems(_ context.Context, userID string, f rowFilter) (int64, error) {
	return p.deleteWhere(pbmigrations.UserFoodItems, userID, f)
}

func (p *PBStore) deleteWhere(collection, userID string, f rowFilter) (int64, error) {
	var n int64
	err := p.app.RunInTransaction(func(txApp core.App) error {
		recs, err := p.find(txApp, collection, userID, f)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := txApp.Delete(rec); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// find applies the caller's row-level scope plus any request filters.
func (p *PBStore) find(app core.App, collection, userID string, f rowFilter) ([]*core.Record, error) {
	filter := "user_id = {:owner}"
	params := map[string]any{"owner": userID}
	if f.UserID != "" {
		filter += " && user_id = {:user}"
		params["user"] = f.UserID
	}
	if f.ID != "" {
		filter += " && id = {:id}"
		params["id"] = f.ID
	}
	sort := ""
	if f.Order != "" {
		dir := ""
		if f.Desc {
			dir = "-"
		}
		sort = dir + f.Order
		if f.Order != "created_at" {
			sort += "," + dir + "created_at"
		}
	}
	return app.FindRecordsByFilter(collection, filter, sort, pbMaxRows, 0, params)
}
