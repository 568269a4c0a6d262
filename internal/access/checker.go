// Package access decides whether an actor may act on an order.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/pkg/cache"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// RoleSource resolves the current role of an active user.
type RoleSource interface {
	ActiveRole(ctx context.Context, userID uuid.UUID) (enums.UserRole, error)
}

const defaultTTL = 5 * time.Minute

// agentTargets are the only statuses a delivery agent may set.
var agentTargets = map[enums.OrderStatus]struct{}{
	enums.OrderStatusOutForDelivery: {},
	enums.OrderStatusDelivered:      {},
	enums.OrderStatusFailedDelivery: {},
	enums.OrderStatusReturned:       {},
}

// Checker applies the ownership policy with roles read through a TTL cache.
type Checker struct {
	roles RoleSource
	cache cache.TTLCache
	ttl   time.Duration
}

func NewChecker(roles RoleSource, c cache.TTLCache, ttl time.Duration) (*Checker, error) {
	if roles == nil {
		return nil, fmt.Errorf("role source required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Checker{roles: roles, cache: c, ttl: ttl}, nil
}

// CanTransition returns FORBIDDEN unless actorID may move order to target.
func (c *Checker) CanTransition(ctx context.Context, actorID uuid.UUID, order *models.Order, target enums.OrderStatus) error {
	role, err := c.role(ctx, actorID)
	if err != nil {
		return err
	}
	switch role {
	case enums.UserRoleAdmin, enums.UserRoleManager:
		return nil
	case enums.UserRoleSalesRep:
		if sameID(order.AssignedRepID, actorID) {
			return nil
		}
		return forbidden("order is not assigned to this sales rep")
	case enums.UserRoleDeliveryAgent:
		if !sameID(order.AssignedAgentID, actorID) {
			return forbidden("order is not assigned to this agent")
		}
		if _, ok := agentTargets[target]; !ok {
			return forbidden(fmt.Sprintf("agents may not set status %s", target))
		}
		return nil
	default:
		return forbidden("role may not change orders")
	}
}

// CanEdit covers item replacement and deletion.
func (c *Checker) CanEdit(ctx context.Context, actorID uuid.UUID, order *models.Order) error {
	role, err := c.role(ctx, actorID)
	if err != nil {
		return err
	}
	switch role {
	case enums.UserRoleAdmin, enums.UserRoleManager:
		return nil
	case enums.UserRoleSalesRep:
		if sameID(order.AssignedRepID, actorID) {
			return nil
		}
	}
	return forbidden("actor may not edit this order")
}

// CanManageStock covers allocation, transfer, return and adjustment.
func (c *Checker) CanManageStock(ctx context.Context, actorID uuid.UUID) error {
	role, err := c.role(ctx, actorID)
	if err != nil {
		return err
	}
	if role == enums.UserRoleAdmin || role == enums.UserRoleManager {
		return nil
	}
	return forbidden("actor may not manage stock")
}

// CanManageFinance covers manual and batch financial sync.
func (c *Checker) CanManageFinance(ctx context.Context, actorID uuid.UUID) error {
	role, err := c.role(ctx, actorID)
	if err != nil {
		return err
	}
	switch role {
	case enums.UserRoleAdmin, enums.UserRoleManager, enums.UserRoleAccountant:
		return nil
	}
	return forbidden("actor may not manage finance")
}

// Role returns the cached role of an active actor. Unknown and inactive
// actors are FORBIDDEN.
func (c *Checker) Role(ctx context.Context, actorID uuid.UUID) (enums.UserRole, error) {
	return c.role(ctx, actorID)
}

// Invalidate evicts the cached role so the next check reads it fresh.
func (c *Checker) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.cache.Delete(ctx, roleKey(userID))
}

func (c *Checker) role(ctx context.Context, actorID uuid.UUID) (enums.UserRole, error) {
	if actorID == uuid.Nil {
		return "", forbidden("actor required")
	}
	key := roleKey(actorID)
	cached, err := c.cache.Get(ctx, key)
	if err == nil {
		if role, parseErr := enums.ParseUserRole(cached); parseErr == nil {
			return role, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read permission cache")
	}

	role, err := c.roles.ActiveRole(ctx, actorID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) || pkgerrors.Is(err, pkgerrors.CodeForbidden) {
			return "", forbidden("unknown or inactive actor")
		}
		return "", err
	}
	// cache write failures only cost a reread
	_ = c.cache.Set(ctx, key, role.String(), c.ttl)
	return role, nil
}

func roleKey(userID uuid.UUID) string {
	return "role:" + userID.String()
}

func sameID(assigned *uuid.UUID, actorID uuid.UUID) bool {
	return assigned != nil && *assigned == actorID
}

func forbidden(msg string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, msg)
}
