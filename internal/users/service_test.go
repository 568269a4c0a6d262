package users

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

type recordingInvalidator struct {
	ids []uuid.UUID
	err error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return r.err
}

func newTestService(t *testing.T, inv Invalidator) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)), inv, logger.Nop())
	require.NoError(t, err)
	return svc
}

func TestCreateAndRole(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	user, err := svc.Create(ctx, CreateUserInput{Name: "Ana", Email: "Ana@Example.com", Role: enums.UserRoleDeliveryAgent})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.True(t, user.IsActive)

	role, err := svc.Role(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleDeliveryAgent, role)

	_, err = svc.Role(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.Classify(err))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Create(context.Background(), CreateUserInput{Name: "A", Email: "a@x.io", Role: "owner"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))

	_, err = svc.Create(context.Background(), CreateUserInput{Name: "A", Email: "a@x.io", Role: enums.UserRoleAdmin, CommissionRate: decimal.RequireFromString("1.5")})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))
}

func TestRoleAndAvailabilityChangesInvalidate(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	svc := newTestService(t, inv)
	user, err := svc.Create(ctx, CreateUserInput{Name: "Bo", Email: "bo@x.io", Role: enums.UserRoleSalesRep})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateRole(ctx, user.ID, enums.UserRoleManager))
	require.NoError(t, svc.SetAvailability(ctx, user.ID, false))
	require.NoError(t, svc.UpdateCommissionRate(ctx, user.ID, decimal.RequireFromString("0.05")))
	assert.Equal(t, []uuid.UUID{user.ID, user.ID}, inv.ids)

	reloaded, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleManager, reloaded.Role)
	assert.False(t, reloaded.IsAvailable)
	assert.True(t, decimal.RequireFromString("0.05").Equal(reloaded.CommissionRate))
}

func TestInvalidationFailureDoesNotFailUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &recordingInvalidator{err: errors.New("redis down")})
	user, err := svc.Create(ctx, CreateUserInput{Name: "Cy", Email: "cy@x.io", Role: enums.UserRoleSalesRep})
	require.NoError(t, err)
	assert.NoError(t, svc.UpdateRole(ctx, user.ID, enums.UserRoleAdmin))
}

func TestUpdateMissingUser(t *testing.T) {
	svc := newTestService(t, nil)
	err := svc.SetAvailability(context.Background(), uuid.New(), true)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.Classify(err))
}

func TestDTOExposesCommissionAlias(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	user, err := svc.Create(ctx, CreateUserInput{Name: "Di", Email: "di@x.io", Role: enums.UserRoleSalesRep, CommissionRate: decimal.RequireFromString("0.1")})
	require.NoError(t, err)

	raw, err := json.Marshal(FromModel(user))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, decoded["commission_rate"], decoded["commission"])
	assert.Equal(t, "0.1", decoded["commission_rate"])
}
