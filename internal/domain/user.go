package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/query"
)

const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// User 密码、重置令牌、active 永远不出现在 JSON 里
type User struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string             `bson:"name" json:"name" validate:"required"`
	Email                string             `bson:"email" json:"email" validate:"required,email"`
	Photo                string             `bson:"photo,omitempty" json:"photo,omitempty"`
	Role                 string             `bson:"role" json:"role" validate:"oneof=user guide lead-guide admin"`
	Password             string             `bson:"password" json:"-" validate:"required"`
	PasswordChangedAt    *time.Time         `bson:"passwordChangedAt,omitempty" json:"-"`
	PasswordResetToken   string             `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires *time.Time         `bson:"passwordResetExpires,omitempty" json:"-"`
	Active               *bool              `bson:"active,omitempty" json:"-"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
	Version              int                `bson:"__v" json:"-"`
}

var UserFields = query.Schema{
	"_id":       query.ObjectID,
	"name":      query.String,
	"email":     query.String,
	"photo":     query.String,
	"role":      query.String,
	"createdAt": query.Date,
}

// UserScope 软删除的用户对所有读取不可见
var UserScope = bson.M{"active": bson.M{"$ne": false}}

// UserProtected 只能走专门的密码 / 停用流程修改
var UserProtected = []string{
	"password", "passwordChangedAt", "passwordResetToken", "passwordResetExpires", "active",
}

var userMessages = map[string]string{
	"name.required":            "Please tell us your name!",
	"email.required":           "Please provide your email",
	"email.email":              "Please provide a valid email",
	"password.required":        "Please provide a password",
	"password.min":             "A password must have at least 8 characters",
	"passwordConfirm.required": "Please confirm your password",
	"passwordConfirm.eqfield":  "Passwords are not the same!",
	"passwordCurrent.required": "Please provide your current password",
}

func (u *User) GetID() primitive.ObjectID   { return u.ID }
func (u *User) SetID(id primitive.ObjectID) { u.ID = id }

func (u *User) Normalize(now time.Time) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now.UTC()
	}
	if u.Active == nil {
		active := true
		u.Active = &active
	}
}

func (u *User) Validate() error { return checkStruct(u, userMessages) }

func (u *User) IsActive() bool { return u.Active == nil || *u.Active }

// ChangedPasswordAfter 令牌签发之后是否改过密码（秒级比较）
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > issuedAt.Unix()
}

// SetPassword 换密码：清掉重置令牌，changedAt 往前拨 1s，保证紧接着签发的令牌有效
func (u *User) SetPassword(hash string, now time.Time) {
	changed := now.Add(-time.Second).UTC()
	u.Password = hash
	u.PasswordChangedAt = &changed
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

// SetResetToken 保存令牌摘要与过期时间；空摘要表示清除
func (u *User) SetResetToken(digest string, expires time.Time) {
	if digest == "" {
		u.PasswordResetToken = ""
		u.PasswordResetExpires = nil
		return
	}
	exp := expires.UTC()
	u.PasswordResetToken = digest
	u.PasswordResetExpires = &exp
}

func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
}

// UserRef 关联展开时的用户展示字段
type UserRef struct {
	ID    primitive.ObjectID `bson:"_id" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email,omitempty" json:"email,omitempty"`
	Photo string             `bson:"photo,omitempty" json:"photo,omitempty"`
	Role  string             `bson:"role,omitempty" json:"role,omitempty"`
}

// Signup 注册请求体
type Signup struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Photo           string `json:"photo"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (s *Signup) Validate() error { return checkStruct(s, userMessages) }

type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewPassword 重置密码请求体
type NewPassword struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (p *NewPassword) Validate() error { return checkStruct(p, userMessages) }

// PasswordChange 登录用户修改密码
type PasswordChange struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (p *PasswordChange) Validate() error { return checkStruct(p, userMessages) }

// ProfileUpdate updateMe 只接受 name / email；带密码字段直接拒绝
type ProfileUpdate struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"passwordConfirm"`
}

func (p *ProfileUpdate) TouchesPassword() bool {
	return p.Password != nil || p.PasswordConfirm != nil
}

func (p *ProfileUpdate) ApplyTo(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
}
