package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAction        = "oracle_action"
	ObjectOracle        = "oracle_profile"
	ObjectPlayerAccount = "player_account"
	ObjectBundle        = "bundle"
)

const (
	ActionRecord = "oracle_action.record"
	ActionView   = "oracle_action.view"

	ActionOracleManage = "oracle_profile.manage"
	ActionOracleView   = "oracle_profile.view"

	ActionAccountManage = "player_account.manage"
	ActionAccountView   = "player_account.view"

	ActionBundleSync  = "bundle.sync"
	ActionBundlePurge = "bundle.purge"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, role string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(actor, role)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(actor string, role string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", ErrInvalidActor
		}
		role = strings.TrimSpace(role)
		if role == "" {
			return "", "", ErrForbidden
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Player permissions
		{"role:player", ObjectAction, ActionRecord},
		{"role:player", ObjectAction, ActionView},
		{"role:player", ObjectOracle, ActionOracleManage},
		{"role:player", ObjectOracle, ActionOracleView},
		{"role:player", ObjectPlayerAccount, ActionAccountManage},
		{"role:player", ObjectPlayerAccount, ActionAccountView},
		{"role:player", ObjectBundle, ActionBundleSync},

		// Admin permissions
		{"role:admin", ObjectAction, ActionRecord},
		{"role:admin", ObjectAction, ActionView},
		{"role:admin", ObjectOracle, ActionOracleManage},
		{"role:admin", ObjectOracle, ActionOracleView},
		{"role:admin", ObjectPlayerAccount, ActionAccountManage},
		{"role:admin", ObjectPlayerAccount, ActionAccountView},
		{"role:admin", ObjectBundle, ActionBundleSync},
		{"role:admin", ObjectBundle, ActionBundlePurge},

		// System permissions (for service-token automation)
		{"role:system", ObjectBundle, ActionBundlePurge},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
