package content

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
	"github.com/spencerjireh/portfoliobridge/internal/idgen"
)

// singletonTypes are the content kinds the bundle collapses to at most one
// row; per SPEC_FULL.md's decision on the bundle-collapse open question,
// duplicates are rejected at write time rather than resolved by last-wins.
var singletonTypes = map[Type]bool{
	TypeAbout:   true,
	TypeContact: true,
}

// PGRepository is the pgx-backed Repository implementation, grounded on the
// teacher's syncservice note/task repositories' transactional upsert shape.
type PGRepository struct {
	db  *pgxpool.Pool
	bus *eventbus.Bus
}

// NewPGRepository wires bus so every committed mutation emits the matching
// content:* event from spec.md §4.10, mirroring how chatorch.Orchestrator
// emits chat:* events after its own persistence calls commit.
func NewPGRepository(db *pgxpool.Pool, bus *eventbus.Bus) *PGRepository {
	return &PGRepository{db: db, bus: bus}
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(data)
}

func unmarshalData(raw []byte) (map[string]any, error) {
	var out map[string]any
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type itemRow struct {
	id        string
	typ       string
	slug      string
	data      []byte
	status    string
	version   int
	sortOrder int
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

func (r itemRow) toItem() (*Item, error) {
	data, err := unmarshalData(r.data)
	if err != nil {
		return nil, err
	}
	return &Item{
		ID: r.id, Type: Type(r.typ), Slug: r.slug, Data: data,
		Status: Status(r.status), Version: r.version, SortOrder: r.sortOrder,
		CreatedAt: r.createdAt, UpdatedAt: r.updatedAt, DeletedAt: r.deletedAt,
	}, nil
}

const itemColumns = `id, type, slug, data, status, version, sort_order, created_at, updated_at, deleted_at`

func scanItem(row pgx.Row) (*Item, error) {
	var r itemRow
	if err := row.Scan(&r.id, &r.typ, &r.slug, &r.data, &r.status, &r.version,
		&r.sortOrder, &r.createdAt, &r.updatedAt, &r.deletedAt); err != nil {
		return nil, err
	}
	return r.toItem()
}

func (repo *PGRepository) FindByID(ctx context.Context, id string) (*Item, error) {
	row := repo.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (repo *PGRepository) FindBySlug(ctx context.Context, typ Type, slug string) (*Item, error) {
	row := repo.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE type = $1 AND slug = $2 AND deleted_at IS NULL`,
		string(typ), slug)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (repo *PGRepository) FindByType(ctx context.Context, typ Type) ([]Item, error) {
	rows, err := repo.db.Query(ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE type = $1 AND deleted_at IS NULL
		 ORDER BY sort_order ASC, created_at DESC`, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (repo *PGRepository) FindPublished(ctx context.Context, typ *Type) ([]Item, error) {
	var rows pgx.Rows
	var err error
	if typ != nil {
		rows, err = repo.db.Query(ctx,
			`SELECT `+itemColumns+` FROM content_items
			 WHERE type = $1 AND status = 'published' AND deleted_at IS NULL
			 ORDER BY sort_order ASC, created_at DESC`, string(*typ))
	} else {
		rows, err = repo.db.Query(ctx,
			`SELECT `+itemColumns+` FROM content_items
			 WHERE status = 'published' AND deleted_at IS NULL
			 ORDER BY sort_order ASC, created_at DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (repo *PGRepository) FindAll(ctx context.Context, q ListQuery) ([]Item, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	sql := `SELECT ` + itemColumns + ` FROM content_items WHERE 1=1`
	args := []any{}
	argN := 0
	next := func() string { argN++; return "$" + strconv.Itoa(argN) }

	if !q.IncludeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	if q.Type != nil {
		sql += ` AND type = ` + next()
		args = append(args, string(*q.Type))
	}
	if q.Status != nil {
		sql += ` AND status = ` + next()
		args = append(args, string(*q.Status))
	}
	sql += ` ORDER BY sort_order ASC, created_at DESC LIMIT ` + next() + ` OFFSET ` + next()
	args = append(args, limit, offset)

	rows, err := repo.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (repo *PGRepository) SlugExists(ctx context.Context, typ Type, slug string, excludeID string) (bool, error) {
	var count int
	if excludeID == "" {
		err := repo.db.QueryRow(ctx,
			`SELECT count(*) FROM content_items WHERE type = $1 AND slug = $2`,
			string(typ), slug).Scan(&count)
		return count > 0, err
	}
	err := repo.db.QueryRow(ctx,
		`SELECT count(*) FROM content_items WHERE type = $1 AND slug = $2 AND id != $3`,
		string(typ), slug, excludeID).Scan(&count)
	return count > 0, err
}

func (repo *PGRepository) Create(ctx context.Context, in CreateInput, changedBy *string) (*Item, error) {
	exists, err := repo.SlugExists(ctx, in.Type, in.Slug, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierr.NewConflict("content item with this type and slug already exists")
	}

	if singletonTypes[in.Type] {
		existing, err := repo.FindByType(ctx, in.Type)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, apierr.NewConflict(string(in.Type) + " already exists; only one is allowed")
		}
	}

	status := in.Status
	if status == "" {
		status = StatusDraft
	}

	dataJSON, err := marshalData(in.Data)
	if err != nil {
		return nil, err
	}

	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	id := idgen.New("content")
	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO content_items (id, type, slug, data, status, version, sort_order, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $7, NULL)`,
		id, string(in.Type), in.Slug, dataJSON, string(status), in.SortOrder, now)
	if err != nil {
		return nil, err
	}

	if err := insertHistory(ctx, tx, id, 1, dataJSON, ChangeCreated, changedBy, nil, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	repo.bus.Emit(eventbus.Event{
		Kind:    eventbus.ContentCreated,
		Payload: eventbus.ContentPayload{ContentID: id, Type: string(in.Type), Slug: in.Slug, Version: 1},
	})

	return &Item{
		ID: id, Type: in.Type, Slug: in.Slug, Data: in.Data, Status: status,
		Version: 1, SortOrder: in.SortOrder, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, contentID string, version int, dataJSON []byte,
	changeType ChangeType, changedBy, changeSummary *string, at time.Time) error {
	hid := idgen.New("hist")
	_, err := tx.Exec(ctx, `
		INSERT INTO content_history (id, content_id, version, data, change_type, changed_by, change_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		hid, contentID, version, dataJSON, string(changeType), changedBy, changeSummary, at)
	return err
}

func (repo *PGRepository) UpdateWithHistory(ctx context.Context, id string, in UpdateInput, changedBy *string) (*Item, error) {
	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1 FOR UPDATE`, id)
	existing, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NewNotFound("content item not found")
	}
	if err != nil {
		return nil, err
	}
	if existing.DeletedAt != nil {
		return nil, apierr.NewNotFound("content item not found")
	}

	newSlug := existing.Slug
	if in.Slug != nil {
		newSlug = *in.Slug
	}
	if newSlug != existing.Slug {
		exists, err := repo.SlugExists(ctx, existing.Type, newSlug, existing.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apierr.NewConflict("content item with this type and slug already exists")
		}
	}

	newStatus := existing.Status
	if in.Status != nil {
		newStatus = *in.Status
	}
	newSortOrder := existing.SortOrder
	if in.SortOrder != nil {
		newSortOrder = *in.SortOrder
	}
	newData := existing.Data
	if in.Data != nil {
		newData = in.Data
	}

	preUpdateJSON, err := marshalData(existing.Data)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	// History captures the pre-update snapshot at the pre-update version,
	// per spec.md §3's invariant that history.version is the snapshot's own
	// version, not the version it transitions to.
	if err := insertHistory(ctx, tx, existing.ID, existing.Version, preUpdateJSON, ChangeUpdated, changedBy, in.ChangeSummary, now); err != nil {
		return nil, err
	}

	newDataJSON, err := marshalData(newData)
	if err != nil {
		return nil, err
	}
	newVersion := existing.Version + 1

	_, err = tx.Exec(ctx, `
		UPDATE content_items SET slug=$1, data=$2, status=$3, sort_order=$4, version=$5, updated_at=$6
		WHERE id=$7`,
		newSlug, newDataJSON, string(newStatus), newSortOrder, newVersion, now, existing.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	repo.bus.Emit(eventbus.Event{
		Kind:    eventbus.ContentUpdated,
		Payload: eventbus.ContentPayload{ContentID: existing.ID, Type: string(existing.Type), Slug: newSlug, Version: newVersion},
	})

	return &Item{
		ID: existing.ID, Type: existing.Type, Slug: newSlug, Data: newData,
		Status: newStatus, Version: newVersion, SortOrder: newSortOrder,
		CreatedAt: existing.CreatedAt, UpdatedAt: now,
	}, nil
}

func (repo *PGRepository) Delete(ctx context.Context, id string, changedBy *string) error {
	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1 FOR UPDATE`, id)
	existing, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return apierr.NewNotFound("content item not found")
	}
	if err != nil {
		return err
	}
	if existing.DeletedAt != nil {
		return apierr.NewNotFound("content item not found")
	}

	dataJSON, err := marshalData(existing.Data)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	if err := insertHistory(ctx, tx, existing.ID, existing.Version, dataJSON, ChangeDeleted, changedBy, nil, now); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE content_items SET deleted_at=$1, updated_at=$1 WHERE id=$2`, now, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	repo.bus.Emit(eventbus.Event{
		Kind:    eventbus.ContentDeleted,
		Payload: eventbus.ContentPayload{ContentID: existing.ID, Type: string(existing.Type), Slug: existing.Slug, Version: existing.Version},
	})

	return nil
}

func (repo *PGRepository) HardDelete(ctx context.Context, id string) error {
	_, err := repo.db.Exec(ctx, `DELETE FROM content_items WHERE id = $1`, id)
	return err
}

func (repo *PGRepository) RestoreVersion(ctx context.Context, id string, version int, changedBy *string) (*Item, error) {
	tx, err := repo.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1 FOR UPDATE`, id)
	existing, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NewNotFound("content item not found")
	}
	if err != nil {
		return nil, err
	}

	var targetDataRaw []byte
	err = tx.QueryRow(ctx,
		`SELECT data FROM content_history WHERE content_id = $1 AND version = $2`,
		id, version).Scan(&targetDataRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NewNotFound("no history snapshot at that version")
	}
	if err != nil {
		return nil, err
	}

	currentJSON, err := marshalData(existing.Data)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	if err := insertHistory(ctx, tx, existing.ID, existing.Version, currentJSON, ChangeRestored, changedBy, nil, now); err != nil {
		return nil, err
	}

	newVersion := existing.Version + 1
	if _, err := tx.Exec(ctx, `UPDATE content_items SET data=$1, version=$2, updated_at=$3 WHERE id=$4`,
		targetDataRaw, newVersion, now, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	restoredData, err := unmarshalData(targetDataRaw)
	if err != nil {
		return nil, err
	}

	repo.bus.Emit(eventbus.Event{
		Kind:    eventbus.ContentRestored,
		Payload: eventbus.ContentPayload{ContentID: existing.ID, Type: string(existing.Type), Slug: existing.Slug, Version: newVersion},
	})

	return &Item{
		ID: existing.ID, Type: existing.Type, Slug: existing.Slug, Data: restoredData,
		Status: existing.Status, Version: newVersion, SortOrder: existing.SortOrder,
		CreatedAt: existing.CreatedAt, UpdatedAt: now, DeletedAt: existing.DeletedAt,
	}, nil
}

func (repo *PGRepository) GetHistory(ctx context.Context, id string, limit, offset int) ([]History, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := repo.db.Query(ctx, `
		SELECT id, content_id, version, data, change_type, changed_by, change_summary, created_at
		FROM content_history WHERE content_id = $1
		ORDER BY version DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]History, 0)
	for rows.Next() {
		var h History
		var raw []byte
		if err := rows.Scan(&h.ID, &h.ContentID, &h.Version, &raw, &h.ChangeType, &h.ChangedBy, &h.ChangeSummary, &h.CreatedAt); err != nil {
			return nil, err
		}
		data, err := unmarshalData(raw)
		if err != nil {
			return nil, err
		}
		h.Data = data
		out = append(out, h)
	}
	return out, rows.Err()
}

func (repo *PGRepository) GetBundle(ctx context.Context) (*Bundle, error) {
	published, err := repo.FindPublished(ctx, nil)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Projects:    make([]Item, 0),
		Experiences: make([]Item, 0),
		Education:   make([]Item, 0),
		Skills:      make([]Item, 0),
	}

	for i := range published {
		item := published[i]
		switch item.Type {
		case TypeProject:
			b.Projects = append(b.Projects, item)
		case TypeExperience:
			b.Experiences = append(b.Experiences, item)
		case TypeEducation:
			b.Education = append(b.Education, item)
		case TypeSkill:
			b.Skills = append(b.Skills, item)
		case TypeAbout:
			if b.About == nil {
				b.About = &item
			} else {
				log.Warn().Str("slug", item.Slug).Msg("content: multiple published about items found, keeping first")
			}
		case TypeContact:
			if b.Contact == nil {
				b.Contact = &item
			} else {
				log.Warn().Str("slug", item.Slug).Msg("content: multiple published contact items found, keeping first")
			}
		}
	}

	return b, nil
}
