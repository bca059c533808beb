package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/okandolu/hae-gpt/internal/config"
	"github.com/okandolu/hae-gpt/internal/models"
	"github.com/okandolu/hae-gpt/internal/vectorindex"
)

const insertBatchSize = 200

// ChunkRow is one mirrored index entry.
type ChunkRow struct {
	bun.BaseModel `bun:"table:hae_chunks,alias:c"`

	ID              string          `bun:"id,pk"`
	Position        int             `bun:"position,notnull"`
	Content         string          `bun:"content,notnull"`
	Filename        string          `bun:"filename"`
	Source          string          `bun:"source"`
	Page            int             `bun:"page"`
	TotalPages      int             `bun:"total_pages"`
	Section         string          `bun:"section"`
	Classification  string          `bun:"classification"`
	Strategy        string          `bun:"chunk_strategy"`
	ChunkIndex      int             `bun:"chunk_id"`
	TotalChunks     int             `bun:"total_chunks"`
	HasTable        bool            `bun:"has_table"`
	Reference       string          `bun:"reference"`
	PublicationYear string          `bun:"publication_year"`
	CreatedAt       time.Time       `bun:"created_at"`
	Embedding       pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score           float32         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: bun's pgdriver
// or lib/pq.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN), pgdriver.WithPassword(cfg.Password))), nil
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrInvalidInput, cfg.Driver)
	}
}

// Store mirrors index entries into a pgvector table.
type Store struct {
	db    *bun.DB
	table string
}

func NewStore(db *bun.DB, table string) *Store {
	if table == "" {
		table = "hae_chunks"
	}
	return &Store{db: db, table: table}
}

// Open connects with cfg and returns a ready store.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(NewDB(sqldb, cfg.Debug), cfg.Table), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTableQuery() *bun.CreateTableQuery {
	return s.db.NewCreateTable().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfNotExists()
}

func (s *Store) searchQuery(query []float32, k int, rows *[]ChunkRow) *bun.SelectQuery {
	vec := pgvector.NewVector(query)
	return s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Column("id", "position", "content", "filename", "source", "page", "total_pages", "section",
			"classification", "chunk_strategy", "chunk_id", "total_chunks", "has_table",
			"reference", "publication_year", "created_at").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(k)
}

func (s *Store) deleteQuery(source string) *bun.DeleteQuery {
	return s.db.NewDelete().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		Where("source = ? OR filename = ?", source, source)
}

// InitDB enables the vector extension and creates the table.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enabling pgvector: %w", err)
	}
	if _, err := s.createTableQuery().Exec(ctx); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// StoreEntries inserts entries in batches. Entries with an all-zero vector
// are skipped and counted in the returned value.
func (s *Store) StoreEntries(ctx context.Context, entries []vectorindex.Entry) (skipped int, err error) {
	rows := make([]ChunkRow, 0, len(entries))
	for _, e := range entries {
		if isZero(e.Vector) {
			skipped++
			continue
		}
		rows = append(rows, toRow(e))
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		batch := rows[start:min(start+insertBatchSize, len(rows))]
		_, err := s.db.NewInsert().
			Model(&batch).
			ModelTableExpr("?", bun.Ident(s.table)).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return skipped, fmt.Errorf("inserting rows %d-%d: %w", start, start+len(batch), err)
		}
	}

	log.Info().Str("table", s.table).Int("rows", len(rows)).Int("skipped", skipped).Msg("Mirrored entries into postgres")
	return skipped, nil
}

// Search returns the k nearest rows by cosine distance.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if k <= 0 {
		return []models.Hit{}, nil
	}
	var rows []ChunkRow
	if err := s.searchQuery(query, k, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.table, err)
	}
	hits := make([]models.Hit, len(rows))
	for i, r := range rows {
		hits[i] = models.Hit{Chunk: fromRow(r), Score: r.Score}
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().
		Model((*ChunkRow)(nil)).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Count(ctx)
}

// DeleteBySource removes the rows of one source path or file name.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	res, err := s.deleteQuery(source).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", source, err)
	}
	return res.RowsAffected()
}

// DropTable removes the mirror table.
func (s *Store) DropTable(ctx context.Context) error {
	_, err := s.db.NewDropTable().TableExpr("?", bun.Ident(s.table)).IfExists().Exec(ctx)
	return err
}

func toRow(e vectorindex.Entry) ChunkRow {
	c := e.Chunk
	return ChunkRow{
		ID:              c.ID,
		Position:        e.Position,
		Content:         c.Content,
		Filename:        c.Filename,
		Source:          c.Source,
		Page:            c.Page,
		TotalPages:      c.TotalPages,
		Section:         c.Section,
		Classification:  string(c.Classification),
		Strategy:        string(c.Strategy),
		ChunkIndex:      c.Index,
		TotalChunks:     c.TotalChunks,
		HasTable:        c.HasTable,
		Reference:       c.Reference,
		PublicationYear: c.PublicationYear,
		CreatedAt:       c.CreatedAt,
		Embedding:       pgvector.NewVector(e.Vector),
	}
}

func fromRow(r ChunkRow) models.Chunk {
	return models.Chunk{
		ID:              r.ID,
		Content:         r.Content,
		Filename:        r.Filename,
		Source:          r.Source,
		Page:            r.Page,
		TotalPages:      r.TotalPages,
		Section:         r.Section,
		Classification:  models.Classification(r.Classification),
		Strategy:        models.Strategy(r.Strategy),
		Index:           r.ChunkIndex,
		TotalChunks:     r.TotalChunks,
		HasTable:        r.HasTable,
		Reference:       r.Reference,
		PublicationYear: r.PublicationYear,
		CreatedAt:       r.CreatedAt,
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
