package casbin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/google/uuid"
)

const (
	playerSubjectFmt = "player:%s"
	groupPrefix      = "group:"
)

// ErrInvalidGrant 権限ノードまたはグループ名が空
var ErrInvalidGrant = errors.New("invalid grant")

// プレイヤーまたはグループに権限ノードを付与する。ノードは末尾の * で前方一致する。
const permissionModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch(r.obj, p.obj)
`

// Grant 付与済みの権限
type Grant struct {
	Subject    string `json:"subject"`
	Permission string `json:"permission"`
}

// PermissionChecker Casbinで権限ノードを判定する
type PermissionChecker struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPermissionChecker 新しいPermissionCheckerを作成
func NewPermissionChecker() (*PermissionChecker, error) {
	m, err := model.NewModelFromString(permissionModel)
	if err != nil {
		return nil, fmt.Errorf("load permission model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("init permission enforcer failed: %w", err)
	}
	return &PermissionChecker{enforcer: enforcer}, nil
}

// SubjectForPlayer プレイヤーのサブジェクト名を返す
func SubjectForPlayer(id uuid.UUID) string {
	return fmt.Sprintf(playerSubjectFmt, id.String())
}

// SubjectForGroup グループのサブジェクト名を返す
func SubjectForGroup(group string) (string, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	group = strings.TrimPrefix(group, groupPrefix)
	if group == "" {
		return "", fmt.Errorf("%w: group is required", ErrInvalidGrant)
	}
	return groupPrefix + group, nil
}

// NormalizePermission 権限ノードを正規化（小文字化）
func NormalizePermission(permission string) string {
	return strings.ToLower(strings.TrimSpace(permission))
}

// HasPermission プレイヤーが権限ノードを持つか判定
func (c *PermissionChecker) HasPermission(_ context.Context, id uuid.UUID, permission string) (bool, error) {
	permission = NormalizePermission(permission)
	if permission == "" {
		return true, nil
	}
	return c.enforcer.Enforce(SubjectForPlayer(id), permission)
}

// GrantPlayer プレイヤーに権限を付与
func (c *PermissionChecker) GrantPlayer(id uuid.UUID, permission string) error {
	return c.grant(SubjectForPlayer(id), permission)
}

// RevokePlayer プレイヤーの権限を剥奪
func (c *PermissionChecker) RevokePlayer(id uuid.UUID, permission string) error {
	return c.revoke(SubjectForPlayer(id), permission)
}

// GrantGroup グループに権限を付与
func (c *PermissionChecker) GrantGroup(group, permission string) error {
	subject, err := SubjectForGroup(group)
	if err != nil {
		return err
	}
	return c.grant(subject, permission)
}

// RevokeGroup グループの権限を剥奪
func (c *PermissionChecker) RevokeGroup(group, permission string) error {
	subject, err := SubjectForGroup(group)
	if err != nil {
		return err
	}
	return c.revoke(subject, permission)
}

// AddToGroup プレイヤーをグループに追加
func (c *PermissionChecker) AddToGroup(id uuid.UUID, group string) error {
	subject, err := SubjectForGroup(group)
	if err != nil {
		return err
	}
	if _, err := c.enforcer.AddGroupingPolicy(SubjectForPlayer(id), subject); err != nil {
		return fmt.Errorf("add group member failed: %w", err)
	}
	return nil
}

// RemoveFromGroup プレイヤーをグループから外す
func (c *PermissionChecker) RemoveFromGroup(id uuid.UUID, group string) error {
	subject, err := SubjectForGroup(group)
	if err != nil {
		return err
	}
	if _, err := c.enforcer.RemoveGroupingPolicy(SubjectForPlayer(id), subject); err != nil {
		return fmt.Errorf("remove group member failed: %w", err)
	}
	return nil
}

// Grants 付与済みの権限一覧
func (c *PermissionChecker) Grants() ([]Grant, error) {
	rules, err := c.enforcer.GetPolicy()
	if err != nil {
		return nil, fmt.Errorf("list grants failed: %w", err)
	}
	grants := make([]Grant, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 {
			continue
		}
		grants = append(grants, Grant{Subject: rule[0], Permission: rule[1]})
	}
	return grants, nil
}

func (c *PermissionChecker) grant(subject, permission string) error {
	permission = NormalizePermission(permission)
	if permission == "" {
		return fmt.Errorf("%w: permission is required", ErrInvalidGrant)
	}
	if _, err := c.enforcer.AddPolicy(subject, permission); err != nil {
		return fmt.Errorf("grant permission failed: %w", err)
	}
	return nil
}

func (c *PermissionChecker) revoke(subject, permission string) error {
	if _, err := c.enforcer.RemovePolicy(subject, NormalizePermission(permission)); err != nil {
		return fmt.Errorf("revoke permission failed: %w", err)
	}
	return nil
}
