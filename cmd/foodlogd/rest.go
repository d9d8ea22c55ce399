// ABOUTME: PostgREST-style handlers for the food_logs and user_food_items tables.
// ABOUTME: Supports eq filters on id/user_id, order=col.dir and return=representation.
package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bhavik/food-log/foodlog"
)

// orderable columns per table.
var orderColumns = map[string]map[string]bool{
	foodlog.TableFoodLogs:  {"logged_at": true, "created_at": true},
	foodlog.TableUserItems: {"created_at": true, "name": true},
}

type foodLogInsert struct {
	LoggedAt string `json:"logged_at" validate:"required"`
	MealType string `json:"meal_type" validate:"required,oneof=breakfast lunch dinner snack other"`
	ItemName string `json:"item_name" validate:"required,max=200"`
	Emoji    string `json:"emoji" validate:"max=32"`
	IsCustom bool   `json:"is_custom"`
}

type userItemInsert struct {
	CategoryType string   `json:"category_type" validate:"required,oneof=breakfast lunch dinner snack"`
	Name         string   `json:"name" validate:"required,max=200"`
	Emoji        string   `json:"emoji" validate:"max=32"`
	Calories     *float64 `json:"calories" validate:"omitempty,gte=0"`
}

type userItemPatch struct {
	Name string `json:"name" validate:"required,max=200"`
}

// parseFilter reads the PostgREST query subset foodlogd understands.
func parseFilter(table string, q url.Values, allowOrder bool) (rowFilter, error) {
	var f rowFilter
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch key {
		case "select":
			if val != "*" {
				return rowFilter{}, errors.New("only select=* is supported")
			}
		case "id", "user_id":
			v, found := strings.CutPrefix(val, "eq.")
			if !found {
				return rowFilter{}, errors.New("only eq filters are supported")
			}
			if key == "id" {
				f.ID = v
			} else {
				f.UserID = v
			}
		case "order":
			if !allowOrder {
				return rowFilter{}, errors.New("order not allowed here")
			}
			col, dir, _ := strings.Cut(val, ".")
			if !orderColumns[table][col] {
				return rowFilter{}, errors.New("cannot order by " + col)
			}
			switch dir {
			case "", "asc":
			case "desc":
				f.Desc = true
			default:
				return rowFilter{}, errors.New("bad order direction " + dir)
			}
			f.Order = col
		default:
			return rowFilter{}, errors.New("unsupported filter " + key)
		}
	}
	return f, nil
}

func knownTable(table string) bool {
	_, ok := orderColumns[table]
	return ok
}

func wantsRepresentation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Prefer"), "return=representation")
}

// GET /rest/v1/{table}.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !knownTable(table) {
		fail(w, http.StatusNotFound, "relation "+table+" does not exist")
		return
	}
	f, err := parseFilter(table, r.URL.Query(), true)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := userIDFrom(r.Context())

	switch table {
	case foodlog.TableFoodLogs:
		rows, err := s.repo.ListFoodLogs(r.Context(), userID, f)
		if err != nil {
			s.dbError(w, "list food logs", err)
			return
		}
		out := make([]foodlog.FoodLogRow, 0, len(rows))
		for _, m := range rows {
			out = append(out, m.row())
		}
		ok(w, out)
	case foodlog.TableUserItems:
		rows, err := s.repo.ListUserItems(r.Context(), userID, f)
		if err != nil {
			s.dbError(w, "list user items", err)
			return
		}
		out := make([]foodlog.UserFoodItemRow, 0, len(rows))
		for _, m := range rows {
			out = append(out, m.row())
		}
		ok(w, out)
	}
}

// POST /rest/v1/{table}. user_id always comes from the token.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	userID := userIDFrom(r.Context())

	switch table {
	case foodlog.TableFoodLogs:
		var req foodLogInsert
		if !s.decodeValid(w, r, &req) {
			return
		}
		ms, err := foodlog.ParseTimestamp(req.LoggedAt)
		if err != nil {
			fail(w, http.StatusBadRequest, "logged_at must be an ISO-8601 timestamp")
			return
		}
		m := FoodLogModel{
			UserID:   userID,
			LoggedAt: foodlog.FormatTimestamp(ms),
			MealType: req.MealType,
			ItemName: req.ItemName,
			Emoji:    req.Emoji,
			IsCustom: req.IsCustom,
		}
		if err := s.repo.InsertFoodLog(r.Context(), &m); err != nil {
			s.dbError(w, "insert food log", err)
			return
		}
		s.created(w, r, []foodlog.FoodLogRow{m.row()})
	case foodlog.TableUserItems:
		var req userItemInsert
		if !s.decodeValid(w, r, &req) {
			return
		}
		m := UserFoodItemModel{
			UserID:       userID,
			CategoryType: req.CategoryType,
			Name:         strings.TrimSpace(req.Name),
			Emoji:        req.Emoji,
			Calories:     req.Calories,
		}
		if err := s.repo.InsertUserItem(r.Context(), &m); err != nil {
			s.dbError(w, "insert user item", err)
			return
		}
		s.created(w, r, []foodlog.UserFoodItemRow{m.row()})
	default:
		fail(w, http.StatusNotFound, "relation "+table+" does not exist")
	}
}

// PATCH /rest/v1/user_food_items?id=eq.<id>. Only the name may change.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if table != foodlog.TableUserItems {
		fail(w, http.StatusMethodNotAllowed, "updates are only supported on "+foodlog.TableUserItems)
		return
	}
	f, err := parseFilter(table, r.URL.Query(), false)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.ID == "" {
		fail(w, http.StatusBadRequest, "id filter required")
		return
	}
	var req userItemPatch
	if !s.decodeValid(w, r, &req) {
		return
	}
	if _, err := s.repo.RenameUserItems(r.Context(), userIDFrom(r.Context()), f, strings.TrimSpace(req.Name)); err != nil {
		s.dbError(w, "rename user item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /rest/v1/{table}?id=eq.<id>. Unfiltered deletes are refused.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !knownTable(table) {
		fail(w, http.StatusNotFound, "relation "+table+" does not exist")
		return
	}
	f, err := parseFilter(table, r.URL.Query(), false)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.ID == "" {
		fail(w, http.StatusBadRequest, "id filter required")
		return
	}
	userID := userIDFrom(r.Context())
	if table == foodlog.TableFoodLogs {
		_, err = s.repo.DeleteFoodLogs(r.Context(), userID, f)
	} else {
		_, err = s.repo.DeleteUserItems(r.Context(), userID, f)
	}
	if err != nil {
		s.dbError(w, "delete from "+table, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) created(w http.ResponseWriter, r *http.Request, rows any) {
	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	write(w, http.StatusCreated, rows)
}

func (s *Server) dbError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s error: %v", op, err)
	fail(w, http.StatusInternalServerError, "db error")
}
