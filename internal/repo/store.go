package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
)

const msgNotFound = "No document found with that ID"

// Document 可由 Store 管理的文档：*T 需要能取 / 设 id、规范化、校验
type Document[T any] interface {
	*T
	GetID() primitive.ObjectID
	SetID(primitive.ObjectID)
	Normalize(now time.Time)
	Validate() error
}

// Store 单集合的通用读写；scope 作用于每一次读取、更新定位和删除定位
type Store[T any, PT Document[T]] struct {
	coll      *mongo.Collection
	scope     bson.M
	protected []string
	now       func() time.Time
}

func NewStore[T any, PT Document[T]](coll *mongo.Collection, scope bson.M, protected ...string) *Store[T, PT] {
	return &Store[T, PT]{coll: coll, scope: scope, protected: protected, now: time.Now}
}

// Unscoped 去掉默认范围的副本
func (s *Store[T, PT]) Unscoped() *Store[T, PT] {
	cp := *s
	cp.scope = nil
	return &cp
}

func (s *Store[T, PT]) Collection() *mongo.Collection { return s.coll }

func (s *Store[T, PT]) where(parts ...bson.M) bson.M {
	return and(append([]bson.M{s.scope}, parts...)...)
}

func (s *Store[T, PT]) FindAll(ctx context.Context, spec query.Spec, parent bson.M) ([]T, error) {
	opts := options.Find().SetSkip(spec.Skip).SetLimit(spec.Limit)
	if len(spec.Sort) > 0 {
		opts.SetSort(spec.Sort)
	}
	if len(spec.Projection) > 0 {
		opts.SetProjection(spec.Projection)
	}
	cur, err := s.coll.Find(ctx, s.where(parent, spec.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.coll.Name(), err)
	}
	return out, nil
}

func (s *Store[T, PT]) FindByID(ctx context.Context, id string) (PT, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *Store[T, PT]) findOne(ctx context.Context, filter bson.M) (PT, error) {
	var doc T
	err := s.coll.FindOne(ctx, s.where(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s: %w", s.coll.Name(), err)
	}
	return &doc, nil
}

// Create 分配 id → 规范化 → 校验 → 插入
func (s *Store[T, PT]) Create(ctx context.Context, doc PT) error {
	if doc.GetID().IsZero() {
		doc.SetID(primitive.NewObjectID())
	}
	doc.Normalize(s.now())
	if err := doc.Validate(); err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return translate(err, "insert "+s.coll.Name())
	}
	return nil
}

// Update 读出 → apply 局部修改 → 还原受保护字段 → 规范化 + 校验合并结果 → $set + 版本号自增
func (s *Store[T, PT]) Update(ctx context.Context, id string, apply func(PT) error) (PT, error) {
	doc, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oid := doc.GetID()
	before, err := toM(doc)
	if err != nil {
		return nil, err
	}
	if err := apply(doc); err != nil {
		return nil, err
	}
	after, err := toM(doc)
	if err != nil {
		return nil, err
	}
	for _, k := range s.protected {
		if v, ok := before[k]; ok {
			after[k] = v
		} else {
			delete(after, k)
		}
	}
	after["_id"] = oid

	var merged T
	if err := fromM(after, &merged); err != nil {
		return nil, err
	}
	doc = &merged
	doc.Normalize(s.now())
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	set, err := toM(doc)
	if err != nil {
		return nil, err
	}
	delete(set, "_id")
	delete(set, query.VersionField)
	for _, k := range s.protected {
		delete(set, k)
	}

	var out T
	err = s.coll.FindOneAndUpdate(ctx,
		s.where(bson.M{"_id": oid}),
		bson.M{"$set": set, "$inc": bson.M{query.VersionField: 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, translate(err, "update "+s.coll.Name())
	}
	return &out, nil
}

// Delete 按范围定位并删除，返回被删除的文档
func (s *Store[T, PT]) Delete(ctx context.Context, id string) (PT, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	var doc T
	err = s.coll.FindOneAndDelete(ctx, s.where(bson.M{"_id": oid})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", s.coll.Name(), err)
	}
	return &doc, nil
}

// ParseID 见 domain.ParseID
func ParseID(id string) (primitive.ObjectID, error) { return domain.ParseID(id) }

// and 合并非空条件；多于一个时用 $and，避免同名 key 互相覆盖
func and(parts ...bson.M) bson.M {
	nonEmpty := make(bson.A, 0, len(parts))
	var last bson.M
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		nonEmpty = append(nonEmpty, p)
		last = p
	}
	switch len(nonEmpty) {
	case 0:
		return bson.M{}
	case 1:
		return last
	default:
		return bson.M{"$and": nonEmpty}
	}
}

func toM(v any) (bson.M, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return m, nil
}

func fromM(m bson.M, out any) error {
	b, err := bson.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := bson.Unmarshal(b, out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

var (
	dupKey    = regexp.MustCompile(`dup key: \{(.*)\}`)
	quotedVal = regexp.MustCompile(`(["'])(?:\\.|[^\\])*?["']`)
)

// translate 唯一索引冲突 → DuplicateKey，其它原样包装
func translate(err error, op string) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.Duplicate(fmt.Sprintf("Duplicate field value: %s. Please use another value!", duplicateValue(err.Error())), err)
}

func duplicateValue(msg string) string {
	m := dupKey.FindStringSubmatch(msg)
	if m == nil {
		return "unknown"
	}
	inner := strings.TrimSpace(m[1])
	if q := quotedVal.FindString(inner); q != "" {
		return q
	}
	return inner
}
