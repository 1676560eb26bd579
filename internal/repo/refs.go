package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tour-booking-api/internal/domain"
)

// userRefs 一次 $in 查询展开用户；已停用的用户不展开
func userRefs(ctx context.Context, users *mongo.Collection, ids []primitive.ObjectID, contact bool) (map[primitive.ObjectID]domain.UserRef, error) {
	out := make(map[primitive.ObjectID]domain.UserRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	proj := bson.M{"name": 1, "photo": 1}
	if contact {
		proj["email"] = 1
		proj["role"] = 1
	}
	filter := and(domain.UserScope, bson.M{"_id": bson.M{"$in": ids}})
	cur, err := users.Find(ctx, filter, options.Find().SetProjection(proj))
	if err != nil {
		return nil, fmt.Errorf("expand users: %w", err)
	}
	var refs []domain.UserRef
	if err := cur.All(ctx, &refs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, ref := range refs {
		out[ref.ID] = ref
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
