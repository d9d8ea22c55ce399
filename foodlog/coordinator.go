// ABOUTME: Coordinator owns the in-memory logs and categories and routes each
// ABOUTME: operation to the local slots or the remote tables by current mode.

package foodlog

import (
	"context"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// LocalBackend is the device-durable store. Loads never fail; they fall back
// to empty logs or the given default categories.
type LocalBackend interface {
	LoadLogs(ctx context.Context) []LogEntry
	SaveLogs(ctx context.Context, logs []LogEntry) error
	LoadCategories(ctx context.Context, defaults []MealCategory) []MealCategory
	SaveCategories(ctx context.Context, cats []MealCategory) error
}

// RemoteBackend is the per-user remote store.
type RemoteBackend interface {
	FetchLogs(ctx context.Context, user UserIdentity) ([]LogEntry, error)
	InsertLog(ctx context.Context, entry LogEntry, user UserIdentity) (LogEntry, error)
	DeleteLog(ctx context.Context, id string) error
	FetchUserItems(ctx context.Context, user UserIdentity) ([]UserFoodItemRow, error)
	InsertUserItem(ctx context.Context, user UserIdentity, mealType MealType, name, emoji string) (FoodItem, error)
	UpdateUserItemName(ctx context.Context, id, name string) error
}

// Options tunes a Coordinator. The zero value is usable.
type Options struct {
	Logger    *log.Logger
	Now       func() time.Time
	NoticeTTL time.Duration // zero uses DefaultNoticeTTL, negative never expires
	Seed      []MealCategory
	Policies  map[Operation]FailurePolicy // overrides DefaultPolicies per operation
	NewID     func() string
}

// Snapshot is a copy of coordinator state safe to hand to a view.
type Snapshot struct {
	Mode       Mode
	Identity   UserIdentity
	SignedIn   bool
	Logs       []LogEntry
	Categories []MealCategory
	Syncing    bool
	Notice     *Notice
}

// Coordinator owns the in-memory logs and categories and routes every
// mutation to whichever backend is authoritative for the current identity.
type Coordinator struct {
	local    LocalBackend
	remote   RemoteBackend
	identity IdentityProvider
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
	ttl      time.Duration
	seed     []MealCategory
	policies map[Operation]FailurePolicy

	mu          sync.Mutex
	ctx         context.Context
	mode        Mode
	user        UserIdentity
	signedIn    bool
	gen         uint64
	logs        []LogEntry
	categories  []MealCategory
	syncing     bool
	notice      *Notice
	noticeSeq   uint64
	noticeTimer *time.Timer
	listeners   map[int]func(Snapshot)
	nextID      int
	unsubscribe func()
	closed      bool

	loads sync.WaitGroup
}

// NewCoordinator wires the backends together. remote and identity may be nil,
// in which case the coordinator stays in local mode.
func NewCoordinator(local LocalBackend, remote RemoteBackend, identity IdentityProvider, opts Options) *Coordinator {
	c := &Coordinator{
		local:     local,
		remote:    remote,
		identity:  identity,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		ttl:       opts.NoticeTTL,
		seed:      opts.Seed,
		policies:  DefaultPolicies(),
		ctx:       context.Background(),
		logs:      []LogEntry{},
		listeners: make(map[int]func(Snapshot)),
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	if c.ttl == 0 {
		c.ttl = DefaultNoticeTTL
	}
	if c.seed == nil {
		c.seed = DefaultCategories()
	}
	for op, p := range opts.Policies {
		c.policies[op] = p
	}
	c.categories = cloneCategories(c.seed)
	return c
}

// Start loads the local collections and begins following identity changes.
// ctx is used for the remote loads triggered by sign-in.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.logs = c.local.LoadLogs(ctx)
	c.categories = c.local.LoadCategories(ctx, c.seed)
	c.mu.Unlock()
	c.emit()

	if c.identity != nil {
		unsub := c.identity.Subscribe(c.setIdentity)
		c.mu.Lock()
		c.unsubscribe = unsub
		c.mu.Unlock()
	}
}

// Close stops following identity changes and cancels the notice timer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.closed = true
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
	}
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Wait blocks until remote loads started so far have finished.
func (c *Coordinator) Wait() { c.loads.Wait() }

// OnChange registers fn to receive a snapshot after every state change.
func (c *Coordinator) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Logs returns a copy of the log collection, newest first.
func (c *Coordinator) Logs() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneLogs(c.logs)
}

// Categories returns a copy of the categories with user items merged in.
func (c *Coordinator) Categories() []MealCategory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneCategories(c.categories)
}

// Mode reports which backend is authoritative.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Syncing is true only while the bulk load after sign-in is running.
func (c *Coordinator) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

// Notice returns the visible notice, if any.
func (c *Coordinator) Notice() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return Notice{}, false
	}
	return *c.notice, true
}

// DismissNotice hides the current notice.
func (c *Coordinator) DismissNotice() {
	c.mu.Lock()
	c.noticeSeq++
	c.notice = nil
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
	}
	c.mu.Unlock()
	c.emit()
}

// setIdentity moves between local and remote mode. Entering remote mode
// replaces logs and categories with the remote copy; local edits made while
// signed out are not merged.
func (c *Coordinator) setIdentity(user UserIdentity, ok bool) {
	c.mu.Lock()
	if c.closed || (ok == c.signedIn && (!ok || user.ID == c.user.ID)) {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	prev := c.mode
	c.user, c.signedIn = user, ok
	if !ok {
		c.user = UserIdentity{}
	}

	if ok && c.remote != nil {
		c.mode = ModeRemote
		c.syncing = true
		c.loads.Add(1)
		ctx := c.ctx
		c.mu.Unlock()
		c.emit()
		go c.loadRemote(ctx, gen, user)
		return
	}

	c.mode = ModeLocal
	c.syncing = false
	if prev == ModeRemote {
		c.logs = c.local.LoadLogs(c.ctx)
		c.categories = c.local.LoadCategories(c.ctx, c.seed)
	}
	c.mu.Unlock()
	c.emit()
}

// loadRemote fetches logs and user items concurrently and applies whichever
// succeeded in one update. Results for a superseded identity are dropped.
func (c *Coordinator) loadRemote(ctx context.Context, gen uint64, user UserIdentity) {
	defer c.loads.Done()

	var (
		wg       sync.WaitGroup
		logs     []LogEntry
		rows     []UserFoodItemRow
		logsErr  error
		itemsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		logs, logsErr = c.remote.FetchLogs(ctx, user)
	}()
	go func() {
		defer wg.Done()
		rows, itemsErr = c.remote.FetchUserItems(ctx, user)
	}()
	wg.Wait()

	if logsErr != nil {
		c.logger.Printf("fetchLogs for %s: %v", user.ID, logsErr)
	}
	if itemsErr != nil {
		c.logger.Printf("fetchUserItems for %s: %v", user.ID, itemsErr)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Printf("discarding remote load for %s: identity changed", user.ID)
		return
	}
	if logsErr == nil {
		c.logs = cloneLogs(logs)
	}
	if itemsErr == nil {
		c.categories = MergeUserItems(c.seed, rows)
	}
	c.syncing = false
	c.mu.Unlock()
	c.emit()
}

// AddLog records that name was eaten now. In remote mode a failed insert
// falls back according to the addLog policy; by default the entry is kept in
// memory with a local id and will be gone after the next remote load.
func (c *Coordinator) AddLog(ctx context.Context, name string, mealType MealType, emoji string, isCustom bool) (LogEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return LogEntry{}, ErrEmptyName
	}
	if !mealType.Valid() {
		return LogEntry{}, ErrInvalidMealType
	}
	entry := LogEntry{
		Timestamp: c.now().UnixMilli(),
		MealType:  mealType,
		ItemName:  name,
		Emoji:     emoji,
		IsCustom:  isCustom,
	}

	mode, user, gen := c.routing()
	if mode == ModeRemote {
		saved, err := c.remote.InsertLog(ctx, entry, user)
		switch {
		case err == nil:
			entry = saved
		case c.policy(OpAddLog) == BestEffortLocal:
			c.logger.Printf("insertLog: %v; keeping entry locally", err)
			entry = c.localEntry(entry)
		default:
			c.logger.Printf("insertLog: %v", err)
			return LogEntry{}, err
		}
	} else {
		entry = c.localEntry(entry)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Printf("addLog: identity changed during insert, entry %s not shown", entry.ID)
		return LogEntry{}, ErrSignedOut
	}
	logs := make([]LogEntry, 0, len(c.logs)+1)
	logs = append(logs, entry)
	c.logs = append(logs, c.logs...)
	c.persistLocked(true, false)
	c.showNoticeLocked(NoticeLogged, entry.ItemName)
	c.mu.Unlock()
	c.emit()
	return entry, nil
}

// AddCustomItem handles a user-authored item. Ephemeral items are logged
// under Other without touching categories. Persisted items are added to their
// category first; if that fails remotely nothing is logged.
func (c *Coordinator) AddCustomItem(ctx context.Context, name, emoji string, action CustomAction) (LogEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return LogEntry{}, ErrEmptyName
	}
	if !action.Persistent() {
		return c.AddLog(ctx, name, Other, emoji, true)
	}
	mealType := action.MealType()
	if !c.hasCategory(mealType) {
		return LogEntry{}, ErrUnknownCategory
	}

	mode, user, gen := c.routing()
	var item FoodItem
	if mode == ModeRemote {
		saved, err := c.remote.InsertUserItem(ctx, user, mealType, name, emoji)
		switch {
		case err == nil:
			item = saved
		case c.policy(OpAddCustomItem) == BestEffortLocal:
			c.logger.Printf("insertUserItem: %v; keeping item locally", err)
			item = c.localItem(name, emoji)
		default:
			c.logger.Printf("insertUserItem: %v", err)
			return LogEntry{}, err
		}
	} else {
		item = c.localItem(name, emoji)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Printf("addCustomItem: identity changed during insert, item %s not shown", item.ID)
		return LogEntry{}, ErrSignedOut
	}
	for i := range c.categories {
		if c.categories[i].Type == mealType {
			c.categories[i].Items = append(c.categories[i].Items, item)
			break
		}
	}
	c.persistLocked(false, true)
	c.mu.Unlock()
	c.emit()

	return c.AddLog(ctx, name, mealType, emoji, true)
}

// UpdateItemTitle renames an item. Only remotely stored items are renamed
// remotely; seed and local items are renamed in memory (and in the local slot
// when in local mode).
func (c *Coordinator) UpdateItemTitle(ctx context.Context, itemID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyName
	}

	c.mu.Lock()
	item, _, found := FindItem(c.categories, itemID)
	mode, gen := c.mode, c.gen
	c.mu.Unlock()
	if !found {
		return ErrItemNotFound
	}

	if mode == ModeRemote && item.Origin == OriginRemote {
		if err := c.remote.UpdateUserItemName(ctx, itemID, title); err != nil {
			c.logger.Printf("updateUserItemName: %v", err)
			if c.policy(OpUpdateItemTitle) == AbortOnFailure {
				return err
			}
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrSignedOut
	}
	for ci := range c.categories {
		for ii := range c.categories[ci].Items {
			if c.categories[ci].Items[ii].ID == itemID {
				c.categories[ci].Items[ii].Name = title
			}
		}
	}
	c.persistLocked(false, true)
	c.mu.Unlock()
	c.emit()
	return nil
}

// DeleteLog removes an entry. In remote mode the entry stays unless the
// remote delete succeeds.
func (c *Coordinator) DeleteLog(ctx context.Context, id string) error {
	c.mu.Lock()
	present := false
	for _, e := range c.logs {
		if e.ID == id {
			present = true
			break
		}
	}
	mode, gen := c.mode, c.gen
	c.mu.Unlock()
	if !present {
		return ErrEntryNotFound
	}

	if mode == ModeRemote {
		if err := c.remote.DeleteLog(ctx, id); err != nil {
			c.logger.Printf("deleteLog: %v", err)
			if c.policy(OpDeleteLog) == AbortOnFailure {
				return err
			}
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrSignedOut
	}
	kept := make([]LogEntry, 0, len(c.logs))
	for _, e := range c.logs {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	c.logs = kept
	c.persistLocked(true, false)
	c.mu.Unlock()
	c.emit()
	return nil
}

// ImportLogs replaces the whole log collection. Nothing is written remotely.
func (c *Coordinator) ImportLogs(logs []LogEntry) {
	c.mu.Lock()
	c.logs = cloneLogs(logs)
	c.persistLocked(true, false)
	c.mu.Unlock()
	c.emit()
}

// ImportFile parses an export file and replaces the logs with it. A malformed
// file leaves the logs untouched and raises a failure notice; a good one
// raises a restored notice.
func (c *Coordinator) ImportFile(data []byte) error {
	logs, err := ParseImport(data)
	c.mu.Lock()
	if err != nil {
		c.showNoticeLocked(NoticeFailure, "Invalid backup file.")
	} else {
		c.logs = logs
		c.persistLocked(true, false)
		c.showNoticeLocked(NoticeRestored, RestoredMessage)
	}
	c.mu.Unlock()
	c.emit()
	return err
}

// ExportLogs writes the current logs as an export file.
func (c *Coordinator) ExportLogs(w io.Writer) error {
	return ExportLogs(w, c.Logs())
}

// Policy returns the failure policy in effect for op.
func (c *Coordinator) Policy(op Operation) FailurePolicy { return c.policy(op) }

func (c *Coordinator) policy(op Operation) FailurePolicy {
	if p, ok := c.policies[op]; ok {
		return p
	}
	return AbortOnFailure
}

func (c *Coordinator) routing() (Mode, UserIdentity, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.user, c.gen
}

func (c *Coordinator) hasCategory(m MealType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range c.categories {
		if cat.Type == m {
			return true
		}
	}
	return false
}

func (c *Coordinator) localEntry(e LogEntry) LogEntry {
	e.ID = c.newID()
	e.Origin = OriginLocal
	return e
}

func (c *Coordinator) localItem(name, emoji string) FoodItem {
	return FoodItem{ID: "custom-" + c.newID(), Name: name, Emoji: emoji, Origin: OriginLocal}
}

// persistLocked writes the changed collections to the local slots. It is a
// no-op in remote mode. Failures are logged; memory stays authoritative.
func (c *Coordinator) persistLocked(logs, categories bool) {
	if c.mode != ModeLocal {
		return
	}
	if logs {
		if err := c.local.SaveLogs(c.ctx, cloneLogs(c.logs)); err != nil {
			c.logger.Printf("save logs: %v", err)
		}
	}
	if categories {
		if err := c.local.SaveCategories(c.ctx, cloneCategories(c.categories)); err != nil {
			c.logger.Printf("save categories: %v", err)
		}
	}
}

// showNoticeLocked replaces the visible notice. Confirmations expire after
// the TTL; a newer notice restarts the clock.
func (c *Coordinator) showNoticeLocked(kind NoticeKind, msg string) {
	c.noticeSeq++
	seq := c.noticeSeq
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	n := &Notice{Kind: kind, Message: msg}
	if kind != NoticeFailure && c.ttl > 0 {
		n.Expires = c.now().Add(c.ttl)
		c.noticeTimer = time.AfterFunc(c.ttl, func() {
			c.mu.Lock()
			if c.noticeSeq != seq {
				c.mu.Unlock()
				return
			}
			c.notice = nil
			c.mu.Unlock()
			c.emit()
		})
	}
	c.notice = n
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		Mode:       c.mode,
		Identity:   c.user,
		SignedIn:   c.signedIn,
		Logs:       cloneLogs(c.logs),
		Categories: cloneCategories(c.categories),
		Syncing:    c.syncing,
	}
	if c.notice != nil {
		n := *c.notice
		s.Notice = &n
	}
	return s
}

func (c *Coordinator) emit() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
