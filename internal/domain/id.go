package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/core/apperr"
)

// ParseID 非法 id 按请求错误处理
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.BadRequest("Invalid _id: " + id)
	}
	return oid, nil
}
