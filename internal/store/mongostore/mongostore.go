// Package mongostore backs the record-store contract with MongoDB: string
// document ids, $set with dotted paths, $inc for counters, (orderBy, _id)
// keyset pagination and change-stream subscriptions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/digitalequity/seasure-sp2/internal/store"
)

type Collection[T any] struct {
	coll *mongo.Collection
}

func NewCollection[T any](db *mongo.Database, name string) *Collection[T] {
	return &Collection[T]{coll: db.Collection(name)}
}

// withID re-keys the marshalled document on the given id. The round trip
// through bson.D keeps every field exactly as the driver would encode it.
func withID[T any](doc *T, id string) (bson.D, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("mongostore: marshal: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("mongostore: unmarshal: %w", err)
	}
	out := bson.D{{Key: "_id", Value: id}}
	for _, e := range d {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Collection[T]) Create(ctx context.Context, doc *T) (string, error) {
	id := uuid.NewString()
	if err := c.CreateWithID(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Collection[T]) CreateWithID(ctx context.Context, id string, doc *T) error {
	d, err := withID(doc, id)
	if err != nil {
		return err
	}
	if _, err := c.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrExists
		}
		return fmt.Errorf("mongostore: insert: %w", err)
	}
	return nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	out := new(T)
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find: %w", err)
	}
	return out, nil
}

func (c *Collection[T]) Update(ctx context.Context, id string, fields store.Fields) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("mongostore: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) Increment(ctx context.Context, id string, fieldPath string, delta int64) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{fieldPath: delta}})
	if err != nil {
		return fmt.Errorf("mongostore: increment: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) Query(ctx context.Context, q store.Query) (store.Page[T], error) {
	if q.OrderBy == "" {
		return store.Page[T]{}, fmt.Errorf("mongostore: query requires an order field")
	}
	filter, err := buildFilter(q)
	if err != nil {
		return store.Page[T]{}, err
	}

	dir := 1
	if q.Desc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return store.Page[T]{}, fmt.Errorf("mongostore: query: %w", err)
	}
	defer cur.Close(ctx)

	var page store.Page[T]
	for cur.Next(ctx) {
		var item T
		if err := bson.Unmarshal(cur.Current, &item); err != nil {
			return store.Page[T]{}, fmt.Errorf("mongostore: decode: %w", err)
		}
		page.Items = append(page.Items, item)

		at, err := cur.Current.LookupErr(q.OrderBy)
		if err == nil {
			if idRaw, idErr := cur.Current.LookupErr("_id"); idErr == nil {
				page.NextCursor = store.Cursor{At: at.Time(), ID: idRaw.StringValue()}.Encode()
			}
		}
	}
	if err := cur.Err(); err != nil {
		return store.Page[T]{}, fmt.Errorf("mongostore: cursor: %w", err)
	}
	return page, nil
}

func buildFilter(q store.Query) (bson.M, error) {
	conds := make([]bson.M, 0, len(q.Filters)+1)
	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEq, store.OpArrayContains:
			// Mongo equality on an array field already means "contains".
			conds = append(conds, bson.M{f.Field: f.Value})
		case store.OpLt:
			conds = append(conds, bson.M{f.Field: bson.M{"$lt": f.Value}})
		case store.OpGt:
			conds = append(conds, bson.M{f.Field: bson.M{"$gt": f.Value}})
		case store.OpContains:
			s, ok := f.Value.(string)
			if !ok {
				return nil, fmt.Errorf("mongostore: contains filter needs a string value")
			}
			conds = append(conds, bson.M{f.Field: bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}})
		default:
			return nil, fmt.Errorf("mongostore: unsupported filter op %q", f.Op)
		}
	}

	if q.Cursor != "" {
		cur, err := store.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		op := "$gt"
		if q.Desc {
			op = "$lt"
		}
		// Keyset continuation: strictly past (orderBy, _id) of the last item.
		conds = append(conds, bson.M{"$or": []bson.M{
			{q.OrderBy: bson.M{op: cur.At}},
			{q.OrderBy: cur.At, "_id": bson.M{op: cur.ID}},
		}})
	}

	switch len(conds) {
	case 0:
		return bson.M{}, nil
	case 1:
		return conds[0], nil
	default:
		return bson.M{"$and": conds}, nil
	}
}

func filtersOnly(filters []store.Filter) (bson.M, error) {
	return buildFilter(store.Query{Filters: filters})
}

func findSortAsc(orderBy string) *options.FindOptionsBuilder {
	return options.Find().SetSort(bson.D{{Key: orderBy, Value: 1}, {Key: "_id", Value: 1}})
}
