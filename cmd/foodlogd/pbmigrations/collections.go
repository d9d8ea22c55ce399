// ABOUTME: PocketBase collections for foodlogd when it runs on PocketBase.
// ABOUTME: Creates accounts, refresh tokens, and the two per-user food tables.

package pbmigrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Collection names.
const (
	Accounts      = "accounts"
	RefreshTokens = "refresh_tokens"
	FoodLogs      = "food_logs"
	UserFoodItems = "user_food_items"
)

func init() {
	m.Register(EnsureCollections, func(app core.App) error {
		for _, name := range []string{UserFoodItems, FoodLogs, RefreshTokens, Accounts} {
			col, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(col); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureCollections creates any missing foodlogd collection. Existing
// collections are left untouched, so it is safe to call on every start.
//
//nolint:funlen // schema definitions are necessarily long
func EnsureCollections(app core.App) error {
	exists := func(name string) bool {
		_, err := app.FindCollectionByNameOrId(name)
		return err == nil
	}

	if !exists(Accounts) {
		accounts := core.NewBaseCollection(Accounts)
		accounts.Fields.Add(
			&core.TextField{Name: "email", Required: true},
			&core.TextField{Name: "password_hash", Required: true},
			&core.TextField{Name: "created_at", Required: true},
		)
		accounts.AddIndex("idx_accounts_email", true, "email", "")
		if err := app.Save(accounts); err != nil {
			return err
		}
	}

	if !exists(RefreshTokens) {
		tokens := core.NewBaseCollection(RefreshTokens)
		tokens.Fields.Add(
			&core.TextField{Name: "token_hash", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.NumberField{Name: "expires_at", Required: true},
		)
		tokens.AddIndex("idx_refresh_tokens_hash", true, "token_hash", "")
		tokens.AddIndex("idx_refresh_tokens_exp", false, "expires_at", "")
		if err := app.Save(tokens); err != nil {
			return err
		}
	}

	if !exists(FoodLogs) {
		logs := core.NewBaseCollection(FoodLogs)
		logs.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "logged_at", Required: true},
			&core.TextField{Name: "meal_type", Required: true},
			&core.TextField{Name: "item_name", Required: true},
			&core.TextField{Name: "emoji"},
			&core.BoolField{Name: "is_custom"},
			&core.TextField{Name: "created_at", Required: true},
		)
		logs.AddIndex("idx_food_logs_user_logged", false, "user_id, logged_at", "")
		if err := app.Save(logs); err != nil {
			return err
		}
	}

	if !exists(UserFoodItems) {
		items := core.NewBaseCollection(UserFoodItems)
		items.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "category_type", Required: true},
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "emoji"},
			&core.NumberField{Name: "calories"},
			&core.BoolField{Name: "has_calories"},
			&core.TextField{Name: "created_at", Required: true},
		)
		items.AddIndex("idx_user_food_items_user_created", false, "user_id, created_at", "")
		if err := app.Save(items); err != nil {
			return err
		}
	}

	return nil
}
