package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/strata/id"
)

var _ id.Codec = ObjectIDCodec{}

// ObjectIDCodec maps string identifiers to BSON ObjectIDs under "_id".
type ObjectIDCodec struct{}

// Key implements id.Codec.
func (ObjectIDCodec) Key() string { return "_id" }

// Parse implements id.Codec.
func (ObjectIDCodec) Parse(s string) (any, error) {
	oid, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", id.ErrInvalid, s, err)
	}
	return oid, nil
}

// Format implements id.Codec.
func (ObjectIDCodec) Format(v any) (string, bool) {
	switch t := v.(type) {
	case bson.ObjectID:
		return t.Hex(), true
	case *bson.ObjectID:
		if t != nil {
			return t.Hex(), true
		}
	}
	return "", false
}

// New implements id.Codec.
func (ObjectIDCodec) New() any { return bson.NewObjectID() }
