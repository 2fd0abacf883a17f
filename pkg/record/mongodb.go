package record

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/activecm/rita-pdns/database"
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/globalsign/mgo/txn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// mongoRecord is the document layout of the dns collection. The _id is
// a digest of the key and is filled in by mgo/txn on insert.
type mongoRecord struct {
	ID        string    `bson:"_id,omitempty"`
	Query     string    `bson:"query"`
	Type      string    `bson:"type"`
	Answer    string    `bson:"answer"`
	Count     int64     `bson:"count"`
	TTL       *int64    `bson:"ttl"`
	FirstSeen time.Time `bson:"first_seen"`
	LastSeen  time.Time `bson:"last_seen"`
}

// mongoLogFile is the document layout of the indexed files collection
type mongoLogFile struct {
	Path           string    `bson:"_id"`
	RunID          string    `bson:"run_id"`
	TotalRecords   int64     `bson:"total_records"`
	SkippedRecords int64     `bson:"skipped_records"`
	Tuples         int64     `bson:"tuples"`
	Inserted       int64     `bson:"inserted"`
	Updated        int64     `bson:"updated"`
	IndexedAt      time.Time `bson:"indexed_at"`
}

type mongoRepo struct {
	db        *database.DB
	table     string
	fileTable string
	txnTable  string
	log       *log.Logger
}

//NewMongoRepository create new repository
func NewMongoRepository(db *database.DB, table, fileTable, txnTable string, logger *log.Logger) Repository {
	return &mongoRepo{
		db:        db,
		table:     table,
		fileTable: fileTable,
		txnTable:  txnTable,
		log:       logger,
	}
}

func (r *mongoRepo) CreateIndexes() error {
	// if collection exists, we don't need to do anything else
	if r.db.CollectionExists(r.table) {
		return nil
	}

	// set desired indexes
	indexes := []mgo.Index{
		{Key: []string{"query", "type", "answer"}, Unique: true},
		{Key: []string{"query"}},
		{Key: []string{"answer"}},
	}

	// create collection
	err := r.db.CreateCollection(r.table, indexes)
	if err != nil {
		return err
	}

	return nil
}

//UpsertChunk runs the chunk as a single mgo/txn transaction. Keys already
//present are asserted to exist and incremented, new keys are asserted
//missing and inserted, so a concurrent writer aborts the whole chunk.
func (r *mongoRepo) UpsertChunk(ctx context.Context, chunk []*Delta) (UpdateResult, error) {
	var result UpdateResult
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	ssn := r.db.Session.Copy()
	defer ssn.Close()
	db := ssn.DB(r.db.GetSelectedDB())

	ids := make([]string, len(chunk))
	for i, delta := range chunk {
		ids[i] = documentID(delta.Key)
	}

	existing, err := r.existingIDs(db.C(r.table), ids)
	if err != nil {
		return result, err
	}

	ops := make([]txn.Op, 0, len(chunk))
	for i, delta := range chunk {
		if _, ok := existing[ids[i]]; ok {
			ops = append(ops, txn.Op{
				C:      r.table,
				Id:     ids[i],
				Assert: txn.DocExists,
				Update: bson.M{
					"$inc": bson.M{"count": int64(delta.Count)},
					"$set": bson.M{"ttl": delta.TTL},
					"$max": bson.M{"last_seen": delta.Timestamp.UTC()},
				},
			})
			result.Updated++
			continue
		}

		ops = append(ops, txn.Op{
			C:      r.table,
			Id:     ids[i],
			Assert: txn.DocMissing,
			Insert: mongoRecord{
				Query:     delta.Key.Query,
				Type:      delta.Key.Type,
				Answer:    delta.Key.Answer,
				Count:     int64(delta.Count),
				TTL:       delta.TTL,
				FirstSeen: delta.Timestamp.UTC(),
				LastSeen:  delta.Timestamp.UTC(),
			},
		})
		result.Inserted++
	}

	runner := txn.NewRunner(db.C(r.txnTable))
	err = runner.Run(ops, "", nil)
	result.Duration = time.Since(start)
	if err == txn.ErrAborted {
		return UpdateResult{Duration: result.Duration}, errors.New("chunk transaction aborted by a concurrent writer")
	}
	if err != nil {
		return UpdateResult{Duration: result.Duration}, errors.Wrap(err, "chunk transaction failed")
	}
	return result, nil
}

func (r *mongoRepo) existingIDs(coll *mgo.Collection, ids []string) (map[string]struct{}, error) {
	var found []struct {
		ID string `bson:"_id"`
	}
	err := coll.Find(bson.M{"_id": bson.M{"$in": ids}}).Select(bson.M{"_id": 1}).All(&found)
	if err != nil {
		return nil, errors.Wrap(err, "could not look up existing records")
	}

	existing := make(map[string]struct{}, len(found))
	for _, doc := range found {
		existing[doc.ID] = struct{}{}
	}
	return existing, nil
}

func (r *mongoRepo) Find(ctx context.Context, term string) ([]Record, error) {
	return r.findRecords(ctx, bson.M{"$or": []bson.M{
		{"query": term},
		{"answer": term},
	}})
}

func (r *mongoRepo) Like(ctx context.Context, term string) ([]Record, error) {
	pattern := bson.RegEx{Pattern: regexp.QuoteMeta(term)}
	return r.findRecords(ctx, bson.M{"$or": []bson.M{
		{"query": pattern},
		{"answer": pattern},
	}})
}

func (r *mongoRepo) findRecords(ctx context.Context, query bson.M) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ssn := r.db.Session.Copy()
	defer ssn.Close()

	var docs []mongoRecord
	err := ssn.DB(r.db.GetSelectedDB()).C(r.table).
		Find(query).
		Sort("query", "type", "answer").
		All(&docs)
	if err != nil {
		return nil, errors.Wrap(err, "search query failed")
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, Record{
			Key: Key{
				Query:  doc.Query,
				Type:   doc.Type,
				Answer: doc.Answer,
			},
			Count:     uint64(doc.Count),
			TTL:       doc.TTL,
			FirstSeen: doc.FirstSeen.UTC(),
			LastSeen:  doc.LastSeen.UTC(),
		})
	}
	return records, nil
}

func (r *mongoRepo) IsLogIndexed(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ssn := r.db.Session.Copy()
	defer ssn.Close()

	n, err := ssn.DB(r.db.GetSelectedDB()).C(r.fileTable).FindId(path).Count()
	if err != nil {
		return false, errors.Wrapf(err, "could not look up %s", path)
	}
	return n > 0, nil
}

func (r *mongoRepo) SetLogIndexed(ctx context.Context, file LogFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ssn := r.db.Session.Copy()
	defer ssn.Close()

	_, err := ssn.DB(r.db.GetSelectedDB()).C(r.fileTable).UpsertId(file.Path, mongoLogFile{
		Path:           file.Path,
		RunID:          file.RunID,
		TotalRecords:   int64(file.TotalRecords),
		SkippedRecords: int64(file.SkippedRecords),
		Tuples:         int64(file.Tuples),
		Inserted:       int64(file.Inserted),
		Updated:        int64(file.Updated),
		IndexedAt:      file.IndexedAt.UTC(),
	})
	if err != nil {
		return errors.Wrapf(err, "could not record indexed file %s", file.Path)
	}
	return nil
}

func (r *mongoRepo) Close() error {
	r.db.Close()
	return nil
}

// documentID hashes the length prefixed key fields into a stable _id
func documentID(k Key) string {
	h := sha1.New()
	var size [8]byte
	for _, part := range []string{k.Query, k.Type, k.Answer} {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
