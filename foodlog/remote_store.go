// ABOUTME: RemoteStore talks to the PostgREST-style per-user tables over HTTP.
// ABOUTME: Each request carries the API key and a fresh bearer token.

package foodlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Remote table names.
const (
	TableFoodLogs  = "food_logs"
	TableUserItems = "user_food_items"
)

// TokenSource hands out a short-lived bearer token for the current user.
// An empty token with a nil error means nobody is signed in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RemoteStore talks to the per-user remote tables. Every request fetches a
// fresh token from the TokenSource; nothing is retried.
type RemoteStore struct {
	cfg    RemoteConfig
	tokens TokenSource
	logger *log.Logger

	mu     sync.Mutex
	handle *remoteHandle
}

// remoteHandle is the derived client state. It is dropped on every identity
// change so the next request rebuilds it.
type remoteHandle struct {
	base string
	hc   *http.Client
}

// NewRemoteStore builds a store; it does not touch the network.
func NewRemoteStore(cfg RemoteConfig, tokens TokenSource) *RemoteStore {
	return &RemoteStore{cfg: cfg, tokens: tokens, logger: log.Default()}
}

// SetLogger redirects operational failure logging.
func (r *RemoteStore) SetLogger(l *log.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Configured reports whether the store can issue requests at all.
func (r *RemoteStore) Configured() bool {
	return r != nil && r.cfg.Configured() && r.tokens != nil
}

// Reset invalidates the cached client handle. Requests already in flight keep
// the token they were sent with.
func (r *RemoteStore) Reset() {
	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()
}

func (r *RemoteStore) client() *remoteHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		to := r.cfg.Timeout
		if to == 0 {
			to = 15 * time.Second
		}
		r.handle = &remoteHandle{
			base: strings.TrimSuffix(r.cfg.BaseURL, "/") + "/rest/v1/",
			hc:   &http.Client{Timeout: to},
		}
	}
	return r.handle
}

// FetchLogs returns the user's log entries, newest first.
func (r *RemoteStore) FetchLogs(ctx context.Context, user UserIdentity) ([]LogEntry, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+user.ID)
	q.Set("order", "logged_at.desc")

	var rows []FoodLogRow
	if err := r.do(ctx, "fetchLogs", http.MethodGet, TableFoodLogs, q, nil, &rows); err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.Entry()
		if err != nil {
			r.logger.Printf("fetchLogs: skipping row: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	// Server ordering is a hint; entries are always handed out newest first.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries, nil
}

// InsertLog stores an entry and returns it with the server-assigned id.
func (r *RemoteStore) InsertLog(ctx context.Context, entry LogEntry, user UserIdentity) (LogEntry, error) {
	var rows []FoodLogRow
	if err := r.do(ctx, "insertLog", http.MethodPost, TableFoodLogs, nil, NewFoodLogRow(entry, user.ID), &rows); err != nil {
		return LogEntry{}, err
	}
	if len(rows) == 0 {
		return LogEntry{}, &RemoteError{Op: "insertLog", Table: TableFoodLogs, Err: ErrServerError, Detail: "empty representation"}
	}
	return rows[0].Entry()
}

// DeleteLog removes an entry by id.
func (r *RemoteStore) DeleteLog(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	return r.do(ctx, "deleteLog", http.MethodDelete, TableFoodLogs, q, nil, nil)
}

// FetchUserItems returns the user's custom items in creation order.
func (r *RemoteStore) FetchUserItems(ctx context.Context, user UserIdentity) ([]UserFoodItemRow, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+user.ID)
	q.Set("order", "created_at.asc")

	var rows []UserFoodItemRow
	if err := r.do(ctx, "fetchUserItems", http.MethodGet, TableUserItems, q, nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []UserFoodItemRow{}
	}
	return rows, nil
}

// InsertUserItem persists a custom item under a meal category.
func (r *RemoteStore) InsertUserItem(ctx context.Context, user UserIdentity, mealType MealType, name, emoji string) (FoodItem, error) {
	payload := UserFoodItemRow{
		UserID:       user.ID,
		CategoryType: mealType,
		Name:         name,
		Emoji:        emoji,
	}
	var rows []UserFoodItemRow
	if err := r.do(ctx, "insertUserItem", http.MethodPost, TableUserItems, nil, payload, &rows); err != nil {
		return FoodItem{}, err
	}
	if len(rows) == 0 {
		return FoodItem{}, &RemoteError{Op: "insertUserItem", Table: TableUserItems, Err: ErrServerError, Detail: "empty representation"}
	}
	return rows[0].Item(), nil
}

// UpdateUserItemName renames a persisted custom item.
func (r *RemoteStore) UpdateUserItemName(ctx context.Context, id, name string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	body := struct {
		Name string `json:"name"`
	}{Name: name}
	return r.do(ctx, "updateUserItemName", http.MethodPatch, TableUserItems, q, body, nil)
}

func (r *RemoteStore) do(ctx context.Context, op, method, table string, query url.Values, body, out any) error {
	if !r.Configured() {
		return &RemoteError{Op: op, Table: table, Err: ErrNotConfigured}
	}
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return &RemoteError{Op: op, Table: table, Err: ErrUnauthorized, Detail: err.Error()}
	}
	if token == "" {
		return &RemoteError{Op: op, Table: table, Err: ErrSignedOut}
	}

	h := r.client()
	target := h.base + table
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.cfg.APIKey != "" {
		req.Header.Set("apikey", r.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if out != nil {
		req.Header.Set("Accept", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := h.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &RemoteError{Op: op, Table: table, Err: errors.Join(ErrNetworkFailure, ctxErr)}
		}
		return &RemoteError{Op: op, Table: table, Err: ErrNetworkFailure, Detail: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{
			Op:     op,
			Table:  table,
			Status: resp.StatusCode,
			Err:    classifyStatus(resp.StatusCode),
			Detail: decodeErrorBody(resp),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Op: op, Table: table, Status: resp.StatusCode, Err: ErrServerError, Detail: fmt.Sprintf("decode: %v", err)}
	}
	return nil
}

// decodeErrorBody pulls a human message out of an error response.
func decodeErrorBody(resp *http.Response) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.Status
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Error != "" {
		return body.Error
	}
	return resp.Status
}

// HealthStatus reports remote reachability.
type HealthStatus struct {
	OK      bool
	Latency time.Duration
	Err     error
}

// Health pings the backend's health endpoint. It needs no token.
func (r *RemoteStore) Health(ctx context.Context) HealthStatus {
	if r == nil || !r.cfg.Configured() {
		return HealthStatus{Err: ErrNotConfigured}
	}
	h := r.client()
	target := strings.TrimSuffix(r.cfg.BaseURL, "/") + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return HealthStatus{Err: err}
	}
	start := time.Now()
	resp, err := h.hc.Do(req)
	if err != nil {
		return HealthStatus{Err: fmt.Errorf("%w: %v", ErrNetworkFailure, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	status := HealthStatus{Latency: time.Since(start)}
	if resp.StatusCode != http.StatusOK {
		status.Err = fmt.Errorf("health: %s", resp.Status)
		return status
	}
	status.OK = true
	return status
}
