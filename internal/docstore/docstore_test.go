package docstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/intelgraph/internal/record"
)

// openStores returns both reference adapters so every contract test
// runs against each.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func attrDoc(hash, subType, payload string) record.Document {
	return record.Document{
		Hash:    hash,
		Kind:    string(record.KindAttribute),
		SubType: subType,
		Payload: payload,
	}
}

func eventDoc(hash, orgid string, ts int64) record.Document {
	return record.Document{
		Hash:           hash,
		Kind:           string(record.KindEvent),
		SubType:        "sighting",
		Payload:        `{}`,
		OrgID:          orgid,
		Timestamp:      ts,
		Category:       string(record.CategoryUnknown),
		TransitiveRefs: []string{"child-" + hash},
	}
}

func TestInsertOneIsIdempotent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := attrDoc("h1", "ip", `"8.8.8.8"`)

			got, inserted, err := store.InsertOne(ctx, doc)
			require.NoError(t, err)
			assert.True(t, inserted)
			assert.Equal(t, doc.Hash, got.Hash)

			// Second insert of the same hash: existing document wins,
			// even with a different (hostile or buggy) body.
			altered := doc
			altered.SubType = "domain"
			got, inserted, err = store.InsertOne(ctx, altered)
			require.NoError(t, err)
			assert.False(t, inserted)
			assert.Equal(t, "ip", got.SubType, "stored document wins")

			n, err := store.Count(ctx, Filter{record.FieldHash: Eq("h1")})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func TestInsertOneConcurrentRace(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := attrDoc("race", "ip", `"1.2.3.4"`)

			const workers = 16
			var wg sync.WaitGroup
			insertions := make(chan bool, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, inserted, err := store.InsertOne(ctx, doc)
					assert.NoError(t, err)
					insertions <- inserted
				}()
			}
			wg.Wait()
			close(insertions)

			var wins int
			for inserted := range insertions {
				if inserted {
					wins++
				}
			}
			assert.Equal(t, 1, wins, "exactly one insert wins the race")

			n, err := store.Count(ctx, Filter{record.FieldHash: Eq("race")})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "no duplicate rows persist")
		})
	}
}

func TestFindFilters(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []record.Document{
				attrDoc("a1", "ip", `"8.8.8.8"`),
				attrDoc("a2", "domain", `"example.com"`),
				eventDoc("e1", "org1", 100),
				eventDoc("e2", "org2", 200),
			}
			for _, doc := range seed {
				_, _, err := store.InsertOne(ctx, doc)
				require.NoError(t, err)
			}

			docs, err := store.Find(ctx, Filter{record.FieldKind: Eq(record.KindEvent)}, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"e1", "e2"}, hashes(docs))

			docs, err = store.Find(ctx, Filter{
				record.FieldKind:  Eq(record.KindEvent),
				record.FieldOrgID: In("org2", "org3"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"e2"}, hashes(docs))

			docs, err = store.Find(ctx, Filter{
				record.FieldTransitiveRefs: Contains("child-e1"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"e1"}, hashes(docs))

			docs, err = store.Find(ctx, Filter{
				record.FieldTimestamp: Gte(150),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"e2"}, hashes(docs))

			// Empty In matches nothing - the shape an empty allowed-org
			// set produces.
			docs, err = store.Find(ctx, Filter{record.FieldOrgID: In()}, nil)
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestFindOneAbsent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			doc, err := store.FindOne(context.Background(), Filter{record.FieldHash: Eq("missing")}, nil)
			require.NoError(t, err)
			assert.Nil(t, doc)
		})
	}
}

func TestProjection(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _, err := store.InsertOne(ctx, eventDoc("e1", "org1", 100))
			require.NoError(t, err)

			doc, err := store.FindOne(ctx,
				Filter{record.FieldHash: Eq("e1")},
				Projection{record.FieldOrgID, record.FieldKind})
			require.NoError(t, err)
			require.NotNil(t, doc)

			assert.Equal(t, "e1", doc.Hash, "hash always projected")
			assert.Equal(t, "org1", doc.OrgID)
			assert.Equal(t, string(record.KindEvent), doc.Kind)
			assert.Empty(t, doc.Payload, "unprojected fields are zeroed")
			assert.Empty(t, doc.TransitiveRefs)
		})
	}
}

func TestUpdateSetAndRefOps(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _, err := store.InsertOne(ctx, eventDoc("e1", "org1", 100))
			require.NoError(t, err)

			err = store.UpdateOne(ctx,
				Filter{record.FieldHash: Eq("e1")},
				Update{
					Set:      map[string]any{record.FieldCategory: record.CategoryMalicious},
					AddToSet: map[string][]string{record.FieldMaliciousRefs: {"m1", "m2", "m1"}},
				})
			require.NoError(t, err)

			doc, err := store.FindOne(ctx, Filter{record.FieldHash: Eq("e1")}, nil)
			require.NoError(t, err)
			assert.Equal(t, string(record.CategoryMalicious), doc.Category)
			assert.Equal(t, []string{"m1", "m2"}, doc.MaliciousRefs)

			err = store.UpdateOne(ctx,
				Filter{record.FieldHash: Eq("e1")},
				Update{Pull: map[string][]string{record.FieldMaliciousRefs: {"m1"}}})
			require.NoError(t, err)

			doc, err = store.FindOne(ctx, Filter{record.FieldHash: Eq("e1")}, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"m2"}, doc.MaliciousRefs)
		})
	}
}

func TestUpdateMany(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, h := range []string{"e1", "e2", "e3"} {
				_, _, err := store.InsertOne(ctx, eventDoc(h, "org1", 100))
				require.NoError(t, err)
			}

			n, err := store.UpdateMany(ctx,
				Filter{record.FieldOrgID: Eq("org1")},
				Update{AddToSet: map[string][]string{record.FieldTransitiveRefs: {"parent"}}})
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			docs, err := store.Find(ctx, Filter{record.FieldTransitiveRefs: Contains("parent")}, nil)
			require.NoError(t, err)
			assert.Len(t, docs, 3)
		})
	}
}

func TestAggregate(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _, err := store.InsertOne(ctx, eventDoc("e1", "org1", 300))
			require.NoError(t, err)
			_, _, err = store.InsertOne(ctx, eventDoc("e2", "org1", 100))
			require.NoError(t, err)
			_, _, err = store.InsertOne(ctx, eventDoc("e3", "org2", 200))
			require.NoError(t, err)

			docs, err := store.Aggregate(ctx, []Stage{
				{Match: Filter{record.FieldOrgID: Eq("org1")}},
				{SortBy: record.FieldTimestamp, Desc: true, Limit: 1},
			})
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, "e1", docs[0].Hash)
		})
	}
}

func TestSQLiteRejectsUnknownFilterField(t *testing.T) {
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer sqlite.Close()

	_, err = sqlite.Find(context.Background(), Filter{"payload; DROP TABLE documents": Eq("x")}, nil)
	require.Error(t, err)
}

func hashes(docs []record.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Hash
	}
	return out
}
