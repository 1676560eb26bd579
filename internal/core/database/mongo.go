package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Opts struct {
	URI                       string
	Database                  string
	MaxPoolSize               uint64
	MinPoolSize               uint64
	ConnectTimeoutSec         int
	ServerSelectionTimeoutSec int
	AppName                   string
}

// Connect 建立连接并 ping 一次；调用方负责 Disconnect
func Connect(ctx context.Context, o Opts) (*mongo.Client, *mongo.Database, error) {
	if o.URI == "" {
		return nil, nil, fmt.Errorf("mongo uri is empty")
	}
	if o.Database == "" {
		return nil, nil, fmt.Errorf("mongo database is empty")
	}
	co := options.Client().
		ApplyURI(o.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	if o.AppName != "" {
		co.SetAppName(o.AppName)
	}
	if o.MaxPoolSize > 0 {
		co.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		co.SetMinPoolSize(o.MinPoolSize)
	}
	if o.ConnectTimeoutSec > 0 {
		co.SetConnectTimeout(time.Duration(o.ConnectTimeoutSec) * time.Second)
	}
	if o.ServerSelectionTimeoutSec > 0 {
		co.SetServerSelectionTimeout(time.Duration(o.ServerSelectionTimeoutSec) * time.Second)
	}

	client, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(o.Database), nil
}

// Indexes 各集合需要的索引（唯一约束、排序、地理查询）
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		"tours": {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "price", Value: 1}, {Key: "ratingsAverage", Value: -1}}},
			{Keys: bson.D{{Key: "slug", Value: 1}}},
			{Keys: bson.D{{Key: "startLocation", Value: "2dsphere"}}},
		},
		"users": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"reviews": {
			{Keys: bson.D{{Key: "tour", Value: 1}, {Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
}

// EnsureIndexes 幂等：已存在的同名索引不会重复创建
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for coll, models := range Indexes() {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
