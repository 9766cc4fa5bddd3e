package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/internal/permcache"
	"hrms/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fakeTx runs the unit of work inline; repositories below are not transactional
type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- role graph ---

type fakeDB struct {
	mu        sync.Mutex
	users     map[uuid.UUID]model.User
	roles     map[uuid.UUID]model.Role
	perms     map[uuid.UUID]model.Permission
	grants    map[uuid.UUID][]uuid.UUID // role -> permissions
	userRoles map[uuid.UUID][]uuid.UUID // user -> roles
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     map[uuid.UUID]model.User{},
		roles:     map[uuid.UUID]model.Role{},
		perms:     map[uuid.UUID]model.Permission{},
		grants:    map[uuid.UUID][]uuid.UUID{},
		userRoles: map[uuid.UUID][]uuid.UUID{},
	}
}

func (d *fakeDB) addPermission(module, action string) model.Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := model.Permission{ID: uuid.New(), Module: module, Action: action, Code: model.PermissionCode(module, action)}
	d.perms[p.ID] = p
	return p
}

func (d *fakeDB) addRole(companyID *uuid.UUID, name string, perms ...model.Permission) model.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := model.Role{ID: uuid.New(), CompanyID: companyID, Name: name, DisplayName: name, IsSystem: companyID == nil}
	d.roles[r.ID] = r
	for _, p := range perms {
		d.grants[r.ID] = append(d.grants[r.ID], p.ID)
	}
	return r
}

func (d *fakeDB) addUser(companyID *uuid.UUID, email string, roles ...model.Role) model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := model.User{ID: uuid.New(), CompanyID: companyID, Name: email, Email: email, IsActive: true}
	d.users[u.ID] = u
	for _, r := range roles {
		d.userRoles[u.ID] = append(d.userRoles[u.ID], r.ID)
	}
	return u
}

func (d *fakeDB) roleWithPermissions(r model.Role) model.Role {
	r.Permissions = nil
	for _, pid := range d.grants[r.ID] {
		r.Permissions = append(r.Permissions, d.perms[pid])
	}
	return r
}

type fakeRoleRepo struct{ db *fakeDB }

func (f fakeRoleRepo) Create(_ context.Context, role *model.Role) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	role.CreatedAt = time.Now()
	stored := *role
	stored.Permissions = nil
	f.db.roles[role.ID] = stored
	return nil
}

func (f fakeRoleRepo) Update(_ context.Context, role *model.Role) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored := *role
	stored.Permissions = nil
	f.db.roles[role.ID] = stored
	return nil
}

func (f fakeRoleRepo) Delete(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.roles, id)
	delete(f.db.grants, id)
	var removed []uuid.UUID
	for user, roles := range f.db.userRoles {
		kept := roles[:0]
		for _, r := range roles {
			if r != id {
				kept = append(kept, r)
			}
		}
		if len(kept) != len(roles) {
			removed = append(removed, user)
		}
		f.db.userRoles[user] = kept
	}
	return removed, nil
}

func (f fakeRoleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.roles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r = f.db.roleWithPermissions(r)
	return &r, nil
}

func (f fakeRoleRepo) FindByName(_ context.Context, companyID *uuid.UUID, name string) (*model.Role, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.roles {
		if r.Name != name {
			continue
		}
		if (companyID == nil && r.CompanyID == nil) ||
			(companyID != nil && r.CompanyID != nil && *companyID == *r.CompanyID) {
			r := r
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeRoleRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Role, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Role
	for _, id := range ids {
		if r, ok := f.db.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f fakeRoleRepo) List(_ context.Context, companyID *uuid.UUID) ([]model.Role, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Role
	for _, r := range f.db.roles {
		if companyID == nil || r.CompanyID == nil || *r.CompanyID == *companyID {
			out = append(out, f.db.roleWithPermissions(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeRoleRepo) ReplacePermissions(_ context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.grants[roleID] = append([]uuid.UUID(nil), permissionIDs...)
	return nil
}

func (f fakeRoleRepo) UserIDsWithRole(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []uuid.UUID
	for user, roles := range f.db.userRoles {
		for _, r := range roles {
			if r == roleID {
				out = append(out, user)
				break
			}
		}
	}
	return out, nil
}

func (f fakeRoleRepo) CreatePermission(_ context.Context, perm *model.Permission) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	f.db.perms[perm.ID] = *perm
	return nil
}

func (f fakeRoleRepo) UpdatePermission(_ context.Context, perm *model.Permission) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored := f.db.perms[perm.ID]
	stored.Description = perm.Description
	f.db.perms[perm.ID] = stored
	return nil
}

func (f fakeRoleRepo) FindPermissionByID(_ context.Context, id uuid.UUID) (*model.Permission, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.perms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f fakeRoleRepo) FindPermissionByCode(_ context.Context, code string) (*model.Permission, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, p := range f.db.perms {
		if p.Code == code {
			p := p
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeRoleRepo) FindPermissionsByIDs(_ context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Permission
	for _, id := range ids {
		if p, ok := f.db.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f fakeRoleRepo) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	if existing, err := f.FindPermissionByCode(ctx, perm.Code); err == nil {
		*perm = *existing
		return nil
	}
	return f.CreatePermission(ctx, perm)
}

func (f fakeRoleRepo) ListPermissions(_ context.Context) ([]model.Permission, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]model.Permission, 0, len(f.db.perms))
	for _, p := range f.db.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f fakeRoleRepo) ResolveUserPermissionCodes(_ context.Context, userID uuid.UUID) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var codes []string
	for _, roleID := range f.db.userRoles[userID] {
		for _, pid := range f.db.grants[roleID] {
			codes = append(codes, f.db.perms[pid].Code)
		}
	}
	return codes, nil
}

type fakeUserRepo struct{ db *fakeDB }

func (f fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	stored.Roles = nil
	f.db.users[user.ID] = stored
	return nil
}

func (f fakeUserRepo) withRoles(u model.User) model.User {
	u.Roles = nil
	for _, rid := range f.db.userRoles[u.ID] {
		u.Roles = append(u.Roles, f.db.roles[rid])
	}
	return u
}

func (f fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u = f.withRoles(u)
	return &u, nil
}

func (f fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if u.Email == email {
			u = f.withRoles(u)
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeUserRepo) List(_ context.Context, companyID *uuid.UUID, offset, limit int) ([]model.User, int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var all []model.User
	for _, u := range f.db.users {
		if companyID == nil || (u.CompanyID != nil && *u.CompanyID == *companyID) {
			all = append(all, f.withRoles(u))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f fakeUserRepo) ReplaceRoles(_ context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.userRoles[userID] = append([]uuid.UUID(nil), roleIDs...)
	return nil
}

// --- audit ---

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (f *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.New()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, companyID *uuid.UUID, offset, limit int) ([]model.AuditLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditLog
	for _, e := range f.entries {
		if companyID == nil || (e.CompanyID != nil && *e.CompanyID == *companyID) {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAuditRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// --- reconciliation ---

type fakeReconRepo struct {
	mu    sync.Mutex
	recs  map[uuid.UUID]model.Reconciliation
	items map[uuid.UUID]model.ReconciliationItem
}

func newFakeReconRepo() *fakeReconRepo {
	return &fakeReconRepo{
		recs:  map[uuid.UUID]model.Reconciliation{},
		items: map[uuid.UUID]model.ReconciliationItem{},
	}
}

func (f *fakeReconRepo) Create(ctx context.Context, rec *model.Reconciliation) error {
	items := rec.Items
	f.mu.Lock()
	rec.ID = uuid.New()
	stored := *rec
	stored.Items = nil
	f.recs[rec.ID] = stored
	f.mu.Unlock()
	return f.AddItems(ctx, rec, items)
}

func (f *fakeReconRepo) AddItems(_ context.Context, rec *model.Reconciliation, items []model.ReconciliationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range items {
		items[i].ID = uuid.New()
		items[i].ReconciliationID = rec.ID
		items[i].CompanyID = rec.CompanyID
		f.items[items[i].ID] = items[i]
	}
	rec.Items = items
	return nil
}

func (f *fakeReconRepo) UpdateSummary(_ context.Context, rec *model.Reconciliation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *rec
	stored.Items = nil
	f.recs[rec.ID] = stored
	return nil
}

func (f *fakeReconRepo) FindByID(_ context.Context, id uuid.UUID, withItems bool) (*model.Reconciliation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if withItems {
		for _, it := range f.items {
			if it.ReconciliationID == id {
				rec.Items = append(rec.Items, it)
			}
		}
		sort.Slice(rec.Items, func(i, j int) bool { return rec.Items[i].Position < rec.Items[j].Position })
	}
	return &rec, nil
}

func (f *fakeReconRepo) List(_ context.Context, filter repository.ReconciliationFilter, offset, limit int) ([]model.Reconciliation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reconciliation
	for _, r := range f.recs {
		if filter.CompanyID != nil && r.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

func (f *fakeReconRepo) FindItemByID(_ context.Context, id uuid.UUID) (*model.ReconciliationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &it, nil
}

func (f *fakeReconRepo) UpdateItem(_ context.Context, item *model.ReconciliationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = *item
	return nil
}

func (f *fakeReconRepo) CountOpenItems(_ context.Context, reconciliationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, it := range f.items {
		if it.ReconciliationID == reconciliationID && it.Status != model.ItemMatched && it.Status != model.ItemResolved {
			n++
		}
	}
	return n, nil
}

type fakePayrollRepo struct {
	cycles   map[uuid.UUID]model.PayrollCycle
	payments map[uuid.UUID][]model.PayrollPayment
}

func (f *fakePayrollRepo) FindCycleByID(_ context.Context, id uuid.UUID) (*model.PayrollCycle, error) {
	c, ok := f.cycles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (f *fakePayrollRepo) ListPayments(_ context.Context, cycleID uuid.UUID, offset, limit int) ([]model.PayrollPayment, int64, error) {
	all := f.payments[cycleID]
	return all, int64(len(all)), nil
}

func (f *fakePayrollRepo) AllPayments(_ context.Context, cycleID uuid.UUID) ([]model.PayrollPayment, error) {
	return f.payments[cycleID], nil
}

type fakeStatsRepo struct {
	records       []model.StatusCount
	items         []model.StatusCount
	lowConfidence int64
	periods       []model.PeriodStatusCount
	lastFilter    repository.ReconciliationFilter
	lastGroupBy   string
}

func (f *fakeStatsRepo) CountRecordsByStatus(_ context.Context, filter repository.ReconciliationFilter) ([]model.StatusCount, error) {
	f.lastFilter = filter
	return f.records, nil
}

func (f *fakeStatsRepo) CountItemsByStatus(_ context.Context, _ repository.ReconciliationFilter) ([]model.StatusCount, error) {
	return f.items, nil
}

func (f *fakeStatsRepo) CountLowConfidenceMatches(_ context.Context, _ repository.ReconciliationFilter) (int64, error) {
	return f.lowConfidence, nil
}

func (f *fakeStatsRepo) CountItemsByPeriod(_ context.Context, _ repository.ReconciliationFilter, groupBy string) ([]model.PeriodStatusCount, error) {
	f.lastGroupBy = groupBy
	return f.periods, nil
}

type publishedEvent struct {
	companyID uuid.UUID
	eventType string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeEvents) Publish(companyID uuid.UUID, eventType string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{companyID: companyID, eventType: eventType})
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, ErrRunInProgress
}

// --- claims ---

func newEngine(db *fakeDB) *authz.Engine {
	return authz.NewEngine(permcache.NewMemoryCache(), fakeRoleRepo{db: db}, time.Hour)
}

func tenantClaims(companyID uuid.UUID, role string) *auth.Claims {
	id := companyID
	return &auth.Claims{UserID: uuid.New(), Email: "staff@acme.test", Role: role, CompanyID: &id}
}

func superAdminClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Email: "root@hrms.test", IsSuperAdmin: true}
}
