package record

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/activecm/rita-pdns/database"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// sqliteTimeFormat is fixed width so stored timestamps compare lexically
const sqliteTimeFormat = "2006-01-02 15:04:05.000000000"

var recordColumns = []interface{}{
	"query", "type", "answer", "count", "ttl", "first_seen", "last_seen",
}

type sqlRepo struct {
	db        *database.SQLDB
	table     string
	fileTable string
	log       *log.Logger
}

//NewSQLRepository creates a repository backed by SQLite or PostgreSQL.
//Ingested log files are tracked in fileTable.
func NewSQLRepository(db *database.SQLDB, table, fileTable string, logger *log.Logger) Repository {
	return &sqlRepo{
		db:        db,
		table:     table,
		fileTable: fileTable,
		log:       logger,
	}
}

func (r *sqlRepo) CreateIndexes() error {
	var stmts []string
	switch r.db.Dialect {
	case "postgres":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
				query TEXT NOT NULL,
				type TEXT NOT NULL,
				answer TEXT NOT NULL,
				count BIGINT NOT NULL,
				ttl BIGINT,
				first_seen TIMESTAMPTZ NOT NULL,
				last_seen TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (query, type, answer)
			)`, r.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
				path TEXT PRIMARY KEY,
				run_id TEXT NOT NULL,
				total_records BIGINT NOT NULL,
				skipped_records BIGINT NOT NULL,
				tuples BIGINT NOT NULL,
				inserted BIGINT NOT NULL,
				updated BIGINT NOT NULL,
				indexed_at TIMESTAMPTZ NOT NULL
			)`, r.fileTable),
		}
	default:
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
				query TEXT NOT NULL,
				type TEXT NOT NULL,
				answer TEXT NOT NULL,
				count INTEGER NOT NULL,
				ttl INTEGER,
				first_seen TEXT NOT NULL,
				last_seen TEXT NOT NULL,
				PRIMARY KEY (query, type, answer)
			)`, r.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
				path TEXT PRIMARY KEY,
				run_id TEXT NOT NULL,
				total_records INTEGER NOT NULL,
				skipped_records INTEGER NOT NULL,
				tuples INTEGER NOT NULL,
				inserted INTEGER NOT NULL,
				updated INTEGER NOT NULL,
				indexed_at TEXT NOT NULL
			)`, r.fileTable),
		}
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_query ON %[1]s (query)", r.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_answer ON %[1]s (answer)", r.table),
	)

	return r.db.ExecAll(context.Background(), stmts...)
}

//UpsertChunk applies each delta with an update falling back to an insert,
//all inside one transaction
func (r *sqlRepo) UpsertChunk(ctx context.Context, chunk []*Delta) (UpdateResult, error) {
	var result UpdateResult
	start := time.Now()

	tx, err := r.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return result, errors.Wrap(err, "could not begin transaction")
	}

	err = tx.Wrap(func() error {
		for _, delta := range chunk {
			updated, err := r.update(ctx, tx, delta)
			if err != nil {
				return err
			}
			if updated {
				result.Updated++
				continue
			}
			if err := r.insert(ctx, tx, delta); err != nil {
				return err
			}
			result.Inserted++
		}
		return nil
	})
	result.Duration = time.Since(start)
	if err != nil {
		return UpdateResult{Duration: result.Duration}, err
	}
	return result, nil
}

func (r *sqlRepo) update(ctx context.Context, tx *goqu.TxDatabase, delta *Delta) (bool, error) {
	ts := r.timeValue(delta.Timestamp)
	res, err := tx.Update(r.table).Prepared(true).Set(goqu.Record{
		"count":     goqu.L("? + ?", goqu.C("count"), int64(delta.Count)),
		"ttl":       ttlValue(delta.TTL),
		"last_seen": goqu.L("CASE WHEN ? < ? THEN ? ELSE ? END", goqu.C("last_seen"), ts, ts, goqu.C("last_seen")),
	}).Where(keyExpression(delta.Key)).Executor().ExecContext(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "could not update %s/%s/%s", delta.Key.Query, delta.Key.Type, delta.Key.Answer)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *sqlRepo) insert(ctx context.Context, tx *goqu.TxDatabase, delta *Delta) error {
	ts := r.timeValue(delta.Timestamp)
	_, err := tx.Insert(r.table).Prepared(true).Rows(goqu.Record{
		"query":      delta.Key.Query,
		"type":       delta.Key.Type,
		"answer":     delta.Key.Answer,
		"count":      int64(delta.Count),
		"ttl":        ttlValue(delta.TTL),
		"first_seen": ts,
		"last_seen":  ts,
	}).Executor().ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "could not insert %s/%s/%s", delta.Key.Query, delta.Key.Type, delta.Key.Answer)
	}
	return nil
}

func (r *sqlRepo) Find(ctx context.Context, term string) ([]Record, error) {
	return r.selectRecords(ctx, goqu.Or(
		goqu.C("query").Eq(term),
		goqu.C("answer").Eq(term),
	))
}

// likeEscaper makes LIKE match the term literally
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (r *sqlRepo) Like(ctx context.Context, term string) ([]Record, error) {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	return r.selectRecords(ctx, goqu.Or(
		goqu.L(`"query" LIKE ? ESCAPE '!'`, pattern),
		goqu.L(`"answer" LIKE ? ESCAPE '!'`, pattern),
	))
}

func (r *sqlRepo) selectRecords(ctx context.Context, where exp.Expression) ([]Record, error) {
	query, args, err := r.db.Goqu.From(r.table).Prepared(true).
		Select(recordColumns...).
		Where(where).
		Order(goqu.C("query").Asc(), goqu.C("type").Asc(), goqu.C("answer").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "search query failed")
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *sqlRepo) IsLogIndexed(ctx context.Context, path string) (bool, error) {
	var found string
	ok, err := r.db.Goqu.From(r.fileTable).Prepared(true).
		Select("path").
		Where(goqu.C("path").Eq(path)).
		ScanValContext(ctx, &found)
	if err != nil {
		return false, errors.Wrapf(err, "could not look up %s", path)
	}
	return ok, nil
}

//SetLogIndexed updates the entry for the path, inserting it if missing
func (r *sqlRepo) SetLogIndexed(ctx context.Context, file LogFile) error {
	row := goqu.Record{
		"run_id":          file.RunID,
		"total_records":   int64(file.TotalRecords),
		"skipped_records": int64(file.SkippedRecords),
		"tuples":          int64(file.Tuples),
		"inserted":        int64(file.Inserted),
		"updated":         int64(file.Updated),
		"indexed_at":      r.timeValue(file.IndexedAt),
	}

	tx, err := r.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}
	return tx.Wrap(func() error {
		res, err := tx.Update(r.fileTable).Prepared(true).
			Set(row).
			Where(goqu.C("path").Eq(file.Path)).
			Executor().ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(err, "could not update indexed file %s", file.Path)
		}
		if affected, err := res.RowsAffected(); err != nil || affected > 0 {
			return err
		}

		row["path"] = file.Path
		_, err = tx.Insert(r.fileTable).Prepared(true).Rows(row).Executor().ExecContext(ctx)
		if err != nil {
			return errors.Wrapf(err, "could not record indexed file %s", file.Path)
		}
		return nil
	})
}

func (r *sqlRepo) Close() error {
	return r.db.Close()
}

// timeValue renders a timestamp the way the active dialect stores it
func (r *sqlRepo) timeValue(t time.Time) interface{} {
	if r.db.Dialect == "postgres" {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeFormat)
}

func keyExpression(k Key) goqu.Ex {
	return goqu.Ex{
		"query":  k.Query,
		"type":   k.Type,
		"answer": k.Answer,
	}
}

func ttlValue(ttl *int64) interface{} {
	if ttl == nil {
		return nil
	}
	return *ttl
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var count int64
	var ttl sql.NullInt64
	var firstSeen, lastSeen dbTime

	err := rows.Scan(&rec.Query, &rec.Type, &rec.Answer, &count, &ttl, &firstSeen, &lastSeen)
	if err != nil {
		return rec, errors.Wrap(err, "could not scan record")
	}

	rec.Count = uint64(count)
	if ttl.Valid {
		v := ttl.Int64
		rec.TTL = &v
	}
	rec.FirstSeen = firstSeen.Time
	rec.LastSeen = lastSeen.Time
	return rec, nil
}

// dbTime accepts the timestamp representations returned by the sql drivers
type dbTime struct {
	time.Time
}

var dbTimeLayouts = []string{
	sqliteTimeFormat,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	default:
		return errors.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return errors.Errorf("unrecognized timestamp %q", s)
}
