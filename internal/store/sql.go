package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/emmamdp/rickandmorty/internal/model"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

var characterColumns = []string{
	"id",
	"name",
	"status",
	"species",
	"type",
	"gender",
	"origin_name",
	"location_name",
	"image_url",
	"episode_urls",
	"created",
}

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	driver string
	now    func() time.Time

	writeMu sync.Mutex
}

// NewSQLStore wraps an open database. driver selects the placeholder format:
// "postgres" uses $1 placeholders, anything else uses "?".
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == driverPostgres {
		placeholder = sq.Dollar
	}
	return &SQLStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		driver: driver,
		now:    time.Now,
	}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx begins a transaction, runs fn, and commits on success. It rolls back
// when fn fails, panics, or ctx is canceled before commit.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting cache transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &sqlWriter{tx: sqlTx, sb: s.sb, now: s.now}); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing cache transaction: %w", err)
	}
	return nil
}

// GetCharacter returns one cached character.
func (s *SQLStore) GetCharacter(ctx context.Context, id int) (model.Character, error) {
	query := s.sb.
		Select(characterColumns...).
		From("characters").
		Where(sq.Eq{"id": id}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Character{}, fmt.Errorf("building get character query: %w", err)
	}

	item, err := scanCharacter(s.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Character{}, ErrNotFound
	}
	if err != nil {
		return model.Character{}, fmt.Errorf("getting character %d: %w", id, err)
	}
	return item, nil
}

// ListCharacters returns cached characters in the id range of opts, ordered
// by id.
func (s *SQLStore) ListCharacters(ctx context.Context, opts ListOptions) ([]model.Character, error) {
	query := s.sb.Select(characterColumns...).From("characters")
	if opts.FromID > 0 {
		query = query.Where(sq.GtOrEq{"id": opts.FromID})
	}
	if opts.ToID > 0 {
		query = query.Where(sq.LtOrEq{"id": opts.ToID})
	}
	query = query.OrderBy("id ASC")
	if opts.Limit > 0 {
		query = query.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		query = query.Offset(uint64(opts.Offset))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list characters query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	items := make([]model.Character, 0)
	for rows.Next() {
		item, scanErr := scanCharacter(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning character row: %w", scanErr)
		}
		items = append(items, item)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating character rows: %w", rowsErr)
	}

	return items, nil
}

// CountCharacters counts cached characters matching filter.
func (s *SQLStore) CountCharacters(ctx context.Context, filter model.Filter) (int, error) {
	query := applyFilter(s.sb.Select("COUNT(*)").From("characters"), filter)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count characters query: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting characters: %w", err)
	}
	return total, nil
}

// GetPaginationKey returns the stored key for a character.
func (s *SQLStore) GetPaginationKey(ctx context.Context, characterID int) (model.PaginationKey, error) {
	query := s.sb.
		Select("character_id", "prev_page", "next_page", "updated_at").
		From("pagination_keys").
		Where(sq.Eq{"character_id": characterID}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.PaginationKey{}, fmt.Errorf("building get pagination key query: %w", err)
	}

	var (
		key       model.PaginationKey
		prevPage  sql.NullInt64
		nextPage  sql.NullInt64
		updatedAt int64
	)
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&key.CharacterID, &prevPage, &nextPage, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PaginationKey{}, ErrNotFound
	}
	if err != nil {
		return model.PaginationKey{}, fmt.Errorf("getting pagination key %d: %w", characterID, err)
	}

	key.PreviousPage = nullIntPtr(prevPage)
	key.NextPage = nullIntPtr(nextPage)
	key.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return key, nil
}

// applyFilter adds the cache-side filter predicates. Every field matches
// case-insensitively; status and gender are exact, the rest are substrings.
func applyFilter(query sq.SelectBuilder, filter model.Filter) sq.SelectBuilder {
	f := filter.Normalize()
	if f.Name != "" {
		query = query.Where(likeExpr("name", f.Name))
	}
	if f.Status != "" {
		query = query.Where(sq.Eq{"status": f.Status})
	}
	if f.Species != "" {
		query = query.Where(likeExpr("species", f.Species))
	}
	if f.Type != "" {
		query = query.Where(likeExpr("type", f.Type))
	}
	if f.Gender != "" {
		query = query.Where(sq.Eq{"gender": f.Gender})
	}
	return query
}

func likeExpr(column, value string) sq.Sqlizer {
	return sq.Expr("LOWER("+column+") LIKE ? ESCAPE '\\'", "%"+escapeLike(value)+"%")
}

func escapeLike(v string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (model.Character, error) {
	var (
		item     model.Character
		status   string
		gender   string
		episodes string
	)
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&status,
		&item.Species,
		&item.Type,
		&gender,
		&item.OriginName,
		&item.LocationName,
		&item.ImageURL,
		&episodes,
		&item.Created,
	); err != nil {
		return model.Character{}, err
	}

	item.Status = model.ParseStatus(status)
	item.Gender = model.ParseGender(gender)
	if episodes != "" {
		if err := json.Unmarshal([]byte(episodes), &item.EpisodeURLs); err != nil {
			return model.Character{}, fmt.Errorf("decoding episode urls for character %d: %w", item.ID, err)
		}
	}
	if item.EpisodeURLs == nil {
		item.EpisodeURLs = []string{}
	}
	return item, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func intPtrValue(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

type sqlWriter struct {
	tx  *sql.Tx
	sb  sq.StatementBuilderType
	now func() time.Time
}

func (w *sqlWriter) UpsertCharacters(ctx context.Context, items []model.Character) error {
	syncedAt := w.now().UTC().UnixMilli()

	for _, item := range items {
		episodes, err := json.Marshal(nonNilStrings(item.EpisodeURLs))
		if err != nil {
			return fmt.Errorf("encoding episode urls for character %d: %w", item.ID, err)
		}

		query := w.sb.
			Insert("characters").
			Columns(append(append([]string{}, characterColumns...), "synced_at")...).
			Values(
				item.ID,
				strings.TrimSpace(item.Name),
				string(model.ParseStatus(string(item.Status))),
				strings.TrimSpace(item.Species),
				strings.TrimSpace(item.Type),
				string(model.ParseGender(string(item.Gender))),
				strings.TrimSpace(item.OriginName),
				strings.TrimSpace(item.LocationName),
				strings.TrimSpace(item.ImageURL),
				string(episodes),
				strings.TrimSpace(item.Created),
				syncedAt,
			).
			Suffix(`
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  status = EXCLUDED.status,
  species = EXCLUDED.species,
  type = EXCLUDED.type,
  gender = EXCLUDED.gender,
  origin_name = EXCLUDED.origin_name,
  location_name = EXCLUDED.location_name,
  image_url = EXCLUDED.image_url,
  episode_urls = EXCLUDED.episode_urls,
  created = EXCLUDED.created,
  synced_at = EXCLUDED.synced_at`)

		sqlStr, args, sqlErr := query.ToSql()
		if sqlErr != nil {
			return fmt.Errorf("building character upsert query: %w", sqlErr)
		}
		if _, execErr := w.tx.ExecContext(ctx, sqlStr, args...); execErr != nil {
			return fmt.Errorf("upserting character %d: %w", item.ID, execErr)
		}
	}
	return nil
}

func (w *sqlWriter) ClearCharacters(ctx context.Context) error {
	sqlStr, args, err := w.sb.Delete("characters").ToSql()
	if err != nil {
		return fmt.Errorf("building clear characters query: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("clearing characters: %w", err)
	}
	return nil
}

func (w *sqlWriter) UpsertPaginationKeys(ctx context.Context, keys []model.PaginationKey) error {
	for _, key := range keys {
		updatedAt := key.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = w.now()
		}

		query := w.sb.
			Insert("pagination_keys").
			Columns("character_id", "prev_page", "next_page", "updated_at").
			Values(key.CharacterID, intPtrValue(key.PreviousPage), intPtrValue(key.NextPage), updatedAt.UTC().UnixMilli()).
			Suffix(`
ON CONFLICT (character_id) DO UPDATE SET
  prev_page = EXCLUDED.prev_page,
  next_page = EXCLUDED.next_page,
  updated_at = EXCLUDED.updated_at`)

		sqlStr, args, sqlErr := query.ToSql()
		if sqlErr != nil {
			return fmt.Errorf("building pagination key upsert query: %w", sqlErr)
		}
		if _, execErr := w.tx.ExecContext(ctx, sqlStr, args...); execErr != nil {
			return fmt.Errorf("upserting pagination key %d: %w", key.CharacterID, execErr)
		}
	}
	return nil
}

func (w *sqlWriter) ClearPaginationKeys(ctx context.Context) error {
	sqlStr, args, err := w.sb.Delete("pagination_keys").ToSql()
	if err != nil {
		return fmt.Errorf("building clear pagination keys query: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("clearing pagination keys: %w", err)
	}
	return nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
