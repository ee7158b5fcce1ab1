// File path: internal/consultation/store.go
package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/consultflow/consultflow/internal/form"
)

var errNilStore = errors.New("consultation store not initialised")

// StoreOptions control the SQLite connection pool.
type StoreOptions struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	BusyTimeout  time.Duration
}

func (o *StoreOptions) applyDefaults() {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 8
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
}

// Store wraps a pooled sqlx.DB connection to the consultation database.
//
// Every consultation and draft query is filtered by agency id taken from the
// caller's session. That scoping is a query convention shared by all methods,
// not a database-enforced boundary.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided path,
// migrating the schema on first use.
func Open(path string) (*Store, error) {
	return OpenWithOptions(StoreOptions{Path: path})
}

// OpenWithOptions constructs a Store using explicit pool settings.
func OpenWithOptions(opts StoreOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	opts.applyDefaults()
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	busy := int(opts.BusyTimeout / time.Millisecond)
	// journal_mode cannot be switched inside a transaction, so every pragma
	// rides on the DSN instead of the migration.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), opts.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agencies (
                id TEXT PRIMARY KEY,
                name TEXT NOT NULL,
                brand_color TEXT,
                logo_url TEXT,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS sessions (
                token TEXT PRIMARY KEY,
                agency_id TEXT NOT NULL,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(agency_id) REFERENCES agencies(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS consultations (
                id TEXT PRIMARY KEY,
                agency_id TEXT NOT NULL,
                status TEXT NOT NULL DEFAULT 'draft',
                sections TEXT NOT NULL DEFAULT '{}',
                completion_percentage INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                completed_at DATETIME,
                FOREIGN KEY(agency_id) REFERENCES agencies(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS drafts (
                id TEXT PRIMARY KEY,
                consultation_id TEXT NOT NULL,
                data TEXT NOT NULL DEFAULT '{}',
                auto_save INTEGER NOT NULL DEFAULT 0,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(consultation_id) REFERENCES consultations(id) ON DELETE CASCADE,
                UNIQUE(consultation_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_agency_status ON consultations(agency_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_consultations_agency_updated ON consultations(agency_id, updated_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_agency ON sessions(agency_id);`,
}

type consultationRow struct {
	ID                   string       `db:"id"`
	AgencyID             string       `db:"agency_id"`
	Status               string       `db:"status"`
	Sections             string       `db:"sections"`
	CompletionPercentage int          `db:"completion_percentage"`
	CreatedAt            time.Time    `db:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at"`
	CompletedAt          sql.NullTime `db:"completed_at"`
}

type draftRow struct {
	ID             string    `db:"id"`
	ConsultationID string    `db:"consultation_id"`
	Data           string    `db:"data"`
	AutoSave       bool      `db:"auto_save"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r consultationRow) toConsultation() (Consultation, error) {
	sections, err := decodeSections(r.Sections)
	if err != nil {
		return Consultation{}, fmt.Errorf("decode sections for %s: %w", r.ID, err)
	}
	record := Consultation{
		ID:                   r.ID,
		AgencyID:             r.AgencyID,
		Status:               Status(r.Status),
		Sections:             sections,
		CompletionPercentage: r.CompletionPercentage,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		record.CompletedAt = &t
	}
	return record, nil
}

func (r draftRow) toDraft() (Draft, error) {
	data, err := decodeSections(r.Data)
	if err != nil {
		return Draft{}, fmt.Errorf("decode draft data for %s: %w", r.ConsultationID, err)
	}
	return Draft{
		ID:             r.ID,
		ConsultationID: r.ConsultationID,
		Data:           data,
		AutoSave:       r.AutoSave,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

func decodeSections(raw string) (map[form.Section]form.SectionData, error) {
	sections := make(map[form.Section]form.SectionData)
	if strings.TrimSpace(raw) == "" {
		return sections, nil
	}
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

func encodeSections(sections map[form.Section]form.SectionData) (string, error) {
	if sections == nil {
		sections = make(map[form.Section]form.SectionData)
	}
	encoded, err := json.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("encode sections: %w", err)
	}
	return string(encoded), nil
}

// CreateAgency registers a tenant with its branding.
func (s *Store) CreateAgency(ctx context.Context, name, brandColor, logoURL string) (Agency, error) {
	if err := s.ensureReady(); err != nil {
		return Agency{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Agency{}, fmt.Errorf("agency name required")
	}
	agency := Agency{
		ID:         uuid.NewString(),
		Name:       name,
		BrandColor: strings.TrimSpace(brandColor),
		LogoURL:    strings.TrimSpace(logoURL),
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agencies (id, name, brand_color, logo_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		agency.ID, agency.Name, agency.BrandColor, agency.LogoURL, agency.CreatedAt)
	if err != nil {
		return Agency{}, fmt.Errorf("insert agency: %w", err)
	}
	return agency, nil
}

// GetAgency returns the branding record for a tenant.
func (s *Store) GetAgency(ctx context.Context, id string) (Agency, error) {
	if err := s.ensureReady(); err != nil {
		return Agency{}, err
	}
	var row struct {
		ID         string         `db:"id"`
		Name       string         `db:"name"`
		BrandColor sql.NullString `db:"brand_color"`
		LogoURL    sql.NullString `db:"logo_url"`
		CreatedAt  time.Time      `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, brand_color, logo_url, created_at FROM agencies WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Agency{}, ErrAgencyNotFound
	}
	if err != nil {
		return Agency{}, fmt.Errorf("query agency: %w", err)
	}
	return Agency{
		ID:         row.ID,
		Name:       row.Name,
		BrandColor: row.BrandColor.String,
		LogoURL:    row.LogoURL.String,
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

// CreateSession mints an ambient cookie credential for an agency.
func (s *Store) CreateSession(ctx context.Context, agencyID string) (Session, error) {
	if err := s.ensureReady(); err != nil {
		return Session{}, err
	}
	if _, err := s.GetAgency(ctx, agencyID); err != nil {
		return Session{}, err
	}
	session := Session{
		Token:     uuid.NewString(),
		AgencyID:  agencyID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, agency_id, created_at) VALUES (?, ?, ?)`,
		session.Token, session.AgencyID, session.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// AgencyForSession resolves a session token to its agency id.
func (s *Store) AgencyForSession(ctx context.Context, token string) (string, error) {
	if err := s.ensureReady(); err != nil {
		return "", err
	}
	var agencyID string
	err := s.db.GetContext(ctx, &agencyID,
		`SELECT agency_id FROM sessions WHERE token = ?`, strings.TrimSpace(token))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionUnknown
	}
	if err != nil {
		return "", fmt.Errorf("query session: %w", err)
	}
	return agencyID, nil
}

// CreateConsultation opens a new draft consultation for the agency.
func (s *Store) CreateConsultation(ctx context.Context, agencyID string) (Consultation, error) {
	if err := s.ensureReady(); err != nil {
		return Consultation{}, err
	}
	if strings.TrimSpace(agencyID) == "" {
		return Consultation{}, fmt.Errorf("agency id required")
	}
	now := time.Now().UTC()
	record := Consultation{
		ID:        uuid.NewString(),
		AgencyID:  agencyID,
		Status:    StatusDraft,
		Sections:  make(map[form.Section]form.SectionData),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, agency_id, status, sections, completion_percentage, created_at, updated_at)
                 VALUES (?, ?, ?, '{}', 0, ?, ?)`,
		record.ID, record.AgencyID, string(record.Status), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return Consultation{}, fmt.Errorf("insert consultation: %w", err)
	}
	return record, nil
}

// GetConsultation fetches a consultation within the agency's scope. Records
// belonging to other agencies are indistinguishable from missing ones.
func (s *Store) GetConsultation(ctx context.Context, agencyID, id string) (Consultation, error) {
	if err := s.ensureReady(); err != nil {
		return Consultation{}, err
	}
	var row consultationRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, agency_id, status, sections, completion_percentage, created_at, updated_at, completed_at
                 FROM consultations WHERE id = ? AND agency_id = ?`, id, agencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return Consultation{}, ErrNotFound
	}
	if err != nil {
		return Consultation{}, fmt.Errorf("query consultation: %w", err)
	}
	return row.toConsultation()
}

// ListConsultations returns the agency's consultations, newest first.
func (s *Store) ListConsultations(ctx context.Context, agencyID string) ([]Consultation, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var rows []consultationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, agency_id, status, sections, completion_percentage, created_at, updated_at, completed_at
                 FROM consultations WHERE agency_id = ? ORDER BY updated_at DESC`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	out := make([]Consultation, 0, len(rows))
	for _, row := range rows {
		record, err := row.toConsultation()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// UpdateSections overlays the supplied sections onto the stored map: supplied
// sections are replaced wholesale, omitted sections are left untouched.
func (s *Store) UpdateSections(ctx context.Context, agencyID, id string, sections map[form.Section]form.SectionData) (Consultation, error) {
	if err := s.ensureReady(); err != nil {
		return Consultation{}, err
	}
	for section := range sections {
		if !section.Known() {
			return Consultation{}, fmt.Errorf("%w: %q", ErrInvalidSection, string(section))
		}
	}
	record, err := s.GetConsultation(ctx, agencyID, id)
	if err != nil {
		return Consultation{}, err
	}
	if record.Status == StatusArchived {
		return Consultation{}, ErrConsultationArchived
	}
	for section, data := range sections {
		record.Sections[section] = data
	}
	encoded, err := encodeSections(record.Sections)
	if err != nil {
		return Consultation{}, err
	}
	record.UpdatedAt = time.Now().UTC()
	record.CompletionPercentage = CompletionPercentage(record.Sections)
	_, err = s.db.ExecContext(ctx,
		`UPDATE consultations SET sections = ?, completion_percentage = ?, updated_at = ?
                 WHERE id = ? AND agency_id = ?`,
		encoded, record.CompletionPercentage, record.UpdatedAt, id, agencyID)
	if err != nil {
		return Consultation{}, fmt.Errorf("update consultation: %w", err)
	}
	return record, nil
}

// SaveDraft supersedes the consultation's single draft row wholesale.
func (s *Store) SaveDraft(ctx context.Context, agencyID, id string, data map[form.Section]form.SectionData, autoSave bool) (Draft, error) {
	if err := s.ensureReady(); err != nil {
		return Draft{}, err
	}
	record, err := s.GetConsultation(ctx, agencyID, id)
	if err != nil {
		return Draft{}, err
	}
	if record.Status == StatusArchived {
		return Draft{}, ErrConsultationArchived
	}
	encoded, err := encodeSections(data)
	if err != nil {
		return Draft{}, err
	}
	draft := Draft{
		ConsultationID: id,
		Data:           data,
		AutoSave:       autoSave,
		UpdatedAt:      time.Now().UTC(),
	}
	// On supersede the upsert keeps the original row's id, so read back the
	// id that actually landed instead of reporting the candidate one.
	err = s.db.GetContext(ctx, &draft.ID,
		`INSERT INTO drafts (id, consultation_id, data, auto_save, updated_at)
                 VALUES (?, ?, ?, ?, ?)
                 ON CONFLICT(consultation_id) DO UPDATE SET data = excluded.data,
                        auto_save = excluded.auto_save, updated_at = excluded.updated_at
                 RETURNING id`,
		uuid.NewString(), draft.ConsultationID, encoded, draft.AutoSave, draft.UpdatedAt)
	if err != nil {
		return Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return draft, nil
}

// GetDraft returns the consultation's draft, or ErrDraftMissing when no
// auto-save has happened yet. Callers on the client side fold that into nil.
func (s *Store) GetDraft(ctx context.Context, agencyID, id string) (Draft, error) {
	if err := s.ensureReady(); err != nil {
		return Draft{}, err
	}
	if _, err := s.GetConsultation(ctx, agencyID, id); err != nil {
		return Draft{}, err
	}
	var row draftRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, consultation_id, data, auto_save, updated_at FROM drafts WHERE consultation_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrDraftMissing
	}
	if err != nil {
		return Draft{}, fmt.Errorf("query draft: %w", err)
	}
	return row.toDraft()
}

// CompleteConsultation transitions a draft to completed, stamping the
// completion time and recomputing the percentage from the stored sections.
func (s *Store) CompleteConsultation(ctx context.Context, agencyID, id string) (Consultation, error) {
	if err := s.ensureReady(); err != nil {
		return Consultation{}, err
	}
	record, err := s.GetConsultation(ctx, agencyID, id)
	if err != nil {
		return Consultation{}, err
	}
	switch record.Status {
	case StatusCompleted:
		return Consultation{}, ErrAlreadyCompleted
	case StatusArchived:
		return Consultation{}, ErrConsultationArchived
	}
	if !CanTransition(record.Status, StatusCompleted) {
		return Consultation{}, fmt.Errorf("cannot complete consultation in status %q", record.Status)
	}
	now := time.Now().UTC()
	record.Status = StatusCompleted
	record.CompletedAt = &now
	record.UpdatedAt = now
	record.CompletionPercentage = CompletionPercentage(record.Sections)
	_, err = s.db.ExecContext(ctx,
		`UPDATE consultations SET status = ?, completed_at = ?, updated_at = ?, completion_percentage = ?
                 WHERE id = ? AND agency_id = ?`,
		string(record.Status), now, now, record.CompletionPercentage, id, agencyID)
	if err != nil {
		return Consultation{}, fmt.Errorf("complete consultation: %w", err)
	}
	return record, nil
}

// ArchiveConsultation moves a consultation to the absorbing archived state.
// Archiving an already archived record is a no-op returning the record.
func (s *Store) ArchiveConsultation(ctx context.Context, agencyID, id string) (Consultation, error) {
	if err := s.ensureReady(); err != nil {
		return Consultation{}, err
	}
	record, err := s.GetConsultation(ctx, agencyID, id)
	if err != nil {
		return Consultation{}, err
	}
	if record.Status == StatusArchived {
		return record, nil
	}
	if !CanTransition(record.Status, StatusArchived) {
		return Consultation{}, fmt.Errorf("cannot archive consultation in status %q", record.Status)
	}
	now := time.Now().UTC()
	record.Status = StatusArchived
	record.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`UPDATE consultations SET status = ?, updated_at = ? WHERE id = ? AND agency_id = ?`,
		string(record.Status), now, id, agencyID)
	if err != nil {
		return Consultation{}, fmt.Errorf("archive consultation: %w", err)
	}
	return record, nil
}
