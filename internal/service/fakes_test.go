package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"incentivos/api/internal/models"
	"incentivos/api/internal/repository"
)

type passTx struct{ calls int }

func (t *passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type memUsers struct {
	mu     sync.Mutex
	byID   map[int64]models.User
	lines  map[int64][]int64
	nextID int64
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[int64]models.User{}, lines: map[int64][]int64{}, nextID: 1}
}

func (m *memUsers) put(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID
	}
	if u.ID >= m.nextID {
		m.nextID = u.ID + 1
	}
	m.byID[u.ID] = u
	return u
}

func (m *memUsers) Create(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	for _, u := range m.byID {
		if u.Username == user.Username {
			m.mu.Unlock()
			return models.User{}, repository.ErrUsernameTaken
		}
	}
	m.mu.Unlock()
	user.IsActive = true
	return m.put(user), nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.User{}, m.err
	}
	for _, u := range m.byID {
		if u.Username == username && u.DeletedAt == nil {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.User{}, m.err
	}
	u, ok := m.byID[id]
	if !ok || u.DeletedAt != nil {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	now := time.Now()
	u.LastLogin = &now
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) SoftDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	u.IsActive = false
	m.byID[id] = u
	return nil
}

func (m *memUsers) ListLineIDs(_ context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64{}, m.lines[userID]...), nil
}

type memRoles map[int64]models.Role

func (m memRoles) GetWithModules(_ context.Context, id int64) (models.Role, error) {
	r, ok := m[id]
	if !ok {
		return models.Role{}, repository.ErrRoleNotFound
	}
	return r, nil
}

type memSessions struct {
	mu     sync.Mutex
	rows   map[int64]models.Session
	nextID int64
	now    func() time.Time
	// racer runs once before the next InvalidateByToken, standing in for a
	// concurrent request that commits first.
	racer func()
}

func newMemSessions(now func() time.Time) *memSessions {
	return &memSessions{rows: map[int64]models.Session{}, nextID: 1, now: now}
}

func (m *memSessions) Create(_ context.Context, s models.Session) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Token == s.Token {
			return models.Session{}, errors.New("duplicate token")
		}
	}
	s.ID = m.nextID
	m.nextID++
	s.IsActive = true
	m.rows[s.ID] = s
	return s, nil
}

func (m *memSessions) GetByToken(_ context.Context, token string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Token == token && row.IsActive {
			return row, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (m *memSessions) GetByID(_ context.Context, id int64) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return row, nil
}

func (m *memSessions) ListActiveByUser(_ context.Context, userID int64) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	now := m.now()
	for _, row := range m.rows {
		if row.UserID == userID && row.IsValid(now) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memSessions) Update(_ context.Context, id int64, upd models.SessionUpdate) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	if upd.Token != nil {
		row.Token = *upd.Token
	}
	if upd.RefreshToken != nil {
		row.RefreshToken = upd.RefreshToken
	}
	if upd.ExpiresAt != nil {
		row.ExpiresAt = upd.ExpiresAt
	}
	if upd.IsActive != nil {
		row.IsActive = *upd.IsActive
	}
	m.rows[id] = row
	return row, nil
}

func (m *memSessions) SoftDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	row.IsActive = false
	m.rows[id] = row
	return nil
}

func (m *memSessions) InvalidateByToken(_ context.Context, token string) error {
	if racer := m.racer; racer != nil {
		m.racer = nil
		racer()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.Token == token && row.IsActive {
			row.IsActive = false
			m.rows[id] = row
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (m *memSessions) InvalidateAllByUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.UserID == userID && row.IsActive {
			row.IsActive = false
			m.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (m *memSessions) CleanupExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for id, row := range m.rows {
		if row.IsActive && row.ExpiresAt != nil && row.ExpiresAt.Before(now) {
			row.IsActive = false
			m.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (m *memSessions) active() []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, row := range m.rows {
		if row.IsActive {
			out = append(out, row)
		}
	}
	return out
}

type recordedAudit struct {
	actor int64
	entry models.AuditEntry
	batch bool
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (r *recordingAuditor) LogAction(_ context.Context, actorID int64, entry models.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedAudit{actor: actorID, entry: entry})
}

func (r *recordingAuditor) LogActionsBatch(_ context.Context, actorID int64, entries []models.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries = append(r.entries, recordedAudit{actor: actorID, entry: e, batch: true})
	}
}

type memAudit struct {
	mu       sync.Mutex
	rows     []models.AuditLog
	err      error
	batches  int
	replayed map[string]bool
}

func (m *memAudit) Create(_ context.Context, entry models.AuditLog) (models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.AuditLog{}, m.err
	}
	entry.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, entry)
	return entry, nil
}

func (m *memAudit) CreateBatch(_ context.Context, entries []models.AuditLog) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.batches++
	out := make([]models.AuditLog, 0, len(entries))
	for _, e := range entries {
		e.ID = int64(len(m.rows) + 1)
		m.rows = append(m.rows, e)
		out = append(out, e)
	}
	return out, nil
}

func (m *memAudit) CreateReplayed(_ context.Context, entries []models.AuditLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.replayed == nil {
		m.replayed = map[string]bool{}
	}
	var inserted int64
	for _, e := range entries {
		if e.ReplayKey == nil {
			return 0, errors.New("missing replay key")
		}
		if m.replayed[*e.ReplayKey] {
			continue
		}
		m.replayed[*e.ReplayKey] = true
		e.ID = int64(len(m.rows) + 1)
		m.rows = append(m.rows, e)
		inserted++
	}
	return inserted, nil
}

func (m *memAudit) Search(_ context.Context, filter models.AuditFilter, page, pageSize int) ([]models.AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.AuditLog
	for _, row := range m.rows {
		if filter.Model != "" && row.Model != filter.Model {
			continue
		}
		if filter.ActorID != nil && row.ActorID != *filter.ActorID {
			continue
		}
		if filter.Action != nil && row.Action != *filter.Action {
			continue
		}
		matched = append(matched, row)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *memAudit) ListByDay(_ context.Context, day time.Time) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	y, mo, d := day.Date()
	for _, row := range m.rows {
		ry, rmo, rd := row.CreatedAt.Date()
		if ry == y && rmo == mo && rd == d {
			out = append(out, row)
		}
	}
	return out, nil
}

type memDeadLetter struct {
	logs []models.AuditLog
	err  error
}

func (m *memDeadLetter) PushAudit(_ context.Context, logs []models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, logs...)
	return nil
}

type memLineas struct {
	mu   sync.Mutex
	rows map[int]map[int64]models.LineaSalida
	// failUpdateOn makes UpdatePeso fail for that id, to exercise rollback.
	failUpdateOn int64
}

func newMemLineas() *memLineas {
	return &memLineas{rows: map[int]map[int64]models.LineaSalida{}}
}

func (m *memLineas) put(linea int, row models.LineaSalida) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[linea] == nil {
		m.rows[linea] = map[int64]models.LineaSalida{}
	}
	m.rows[linea][row.ID] = row
}

func (m *memLineas) get(linea int, id int64) models.LineaSalida {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[linea][id]
}

func (m *memLineas) GetByID(_ context.Context, linea int, id int64) (models.LineaSalida, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[linea][id]
	if !ok {
		return models.LineaSalida{}, repository.ErrLineaNotFound
	}
	return row, nil
}

func (m *memLineas) GetForUpdate(ctx context.Context, linea int, id int64) (models.LineaSalida, error) {
	return m.GetByID(ctx, linea, id)
}

func (m *memLineas) matching(linea int, filter models.LineaFilter) []models.LineaSalida {
	var out []models.LineaSalida
	for _, row := range m.rows[linea] {
		if filter.Lote != "" && (row.Lote == nil || *row.Lote != filter.Lote) {
			continue
		}
		if filter.Fecha != nil && (row.FechaP == nil || !sameDay(*row.FechaP, *filter.Fecha)) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *memLineas) List(_ context.Context, linea int, filter models.LineaFilter, page, pageSize int) ([]models.LineaSalida, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(linea, filter)
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memLineas) ListForUpdate(_ context.Context, linea int, filter models.LineaFilter) ([]models.LineaSalida, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matching(linea, filter), nil
}

func (m *memLineas) ListByIDsForUpdate(_ context.Context, linea int, ids []int64) ([]models.LineaSalida, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LineaSalida
	for _, id := range ids {
		if row, ok := m.rows[linea][id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memLineas) UpdatePeso(_ context.Context, linea int, id int64, peso decimal.Decimal) (models.LineaSalida, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateOn == id {
		return models.LineaSalida{}, errors.New("update failed")
	}
	row, ok := m.rows[linea][id]
	if !ok {
		return models.LineaSalida{}, repository.ErrLineaNotFound
	}
	row.PesoKg = peso
	m.rows[linea][id] = row
	return row, nil
}

func (m *memLineas) UpdateCodigoParrilla(_ context.Context, linea int, id int64, codigo string) (models.LineaSalida, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[linea][id]
	if !ok {
		return models.LineaSalida{}, repository.ErrLineaNotFound
	}
	row.CodigoParrilla = &codigo
	m.rows[linea][id] = row
	return row, nil
}

func (m *memLineas) UpdateLote(_ context.Context, linea int, ids []int64, lote string) ([]models.LineaSalida, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LineaSalida
	for _, id := range ids {
		row, ok := m.rows[linea][id]
		if !ok {
			return nil, repository.ErrLineaNotFound
		}
		l := lote
		row.Lote = &l
		m.rows[linea][id] = row
		out = append(out, row)
	}
	return out, nil
}

func (m *memLineas) Delete(_ context.Context, linea int, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[linea][id]; !ok {
		return repository.ErrLineaNotFound
	}
	delete(m.rows[linea], id)
	return nil
}

type memTaras struct {
	mu     sync.Mutex
	rows   map[int64]models.Tara
	nextID int64
}

func newMemTaras(taras ...models.Tara) *memTaras {
	m := &memTaras{rows: map[int64]models.Tara{}, nextID: 1}
	for _, t := range taras {
		m.rows[t.ID] = t
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
	}
	return m
}

func (m *memTaras) Create(_ context.Context, t models.Tara) (models.Tara, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID
	m.nextID++
	m.rows[t.ID] = t
	return t, nil
}

func (m *memTaras) GetByID(_ context.Context, id int64) (models.Tara, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return models.Tara{}, repository.ErrTaraNotFound
	}
	return t, nil
}

func (m *memTaras) List(_ context.Context, onlyActive bool) ([]models.Tara, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Tara
	for _, t := range m.rows {
		if onlyActive && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTaras) SetPrincipal(_ context.Context, id int64) (models.Tara, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.rows[id]
	if !ok {
		return models.Tara{}, repository.ErrTaraNotFound
	}
	for tid, t := range m.rows {
		t.IsPrincipal = false
		m.rows[tid] = t
	}
	target.IsPrincipal = true
	m.rows[id] = target
	return target, nil
}

type memMigas struct {
	mu     sync.Mutex
	rows   map[int64]models.Miga
	nextID int64
}

func newMemMigas() *memMigas {
	return &memMigas{rows: map[int64]models.Miga{}, nextID: 1}
}

func (m *memMigas) GetByRegistro(_ context.Context, linea int, registro int64) (models.Miga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Linea == linea && row.Registro == registro {
			return row, nil
		}
	}
	return models.Miga{}, repository.ErrMigaNotFound
}

func (m *memMigas) Create(_ context.Context, miga models.Miga) (models.Miga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Linea == miga.Linea && row.Registro == miga.Registro {
			return models.Miga{}, repository.ErrMigaExists
		}
	}
	miga.ID = m.nextID
	m.nextID++
	m.rows[miga.ID] = miga
	return miga, nil
}

func (m *memMigas) Update(_ context.Context, id int64, pMiga, porcentaje decimal.Decimal) (models.Miga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.Miga{}, repository.ErrMigaNotFound
	}
	row.PMiga = pMiga
	row.Porcentaje = porcentaje
	m.rows[id] = row
	return row, nil
}

func (m *memMigas) ListByRegistros(_ context.Context, linea int, registros []int64) ([]models.Miga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, r := range registros {
		want[r] = true
	}
	var out []models.Miga
	for _, row := range m.rows {
		if row.Linea == linea && want[row.Registro] {
			out = append(out, row)
		}
	}
	return out, nil
}
