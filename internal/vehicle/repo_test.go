package vehicle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/testutil"
)

func newRepo(t *testing.T) *Repo {
	t.Helper()
	return NewRepo(testutil.OpenDB(t, &Vehicle{}))
}

func seed(t *testing.T, r *Repo, state State, odometer int64) *Vehicle {
	t.Helper()
	v := &Vehicle{
		ID:          uuid.NewString(),
		PlateNumber: "T-" + uuid.NewString()[:8],
		State:       state,
		Odometer:    odometer,
	}
	require.NoError(t, r.Create(context.Background(), v))
	return v
}

func TestCreateRejectsUnknownState(t *testing.T) {
	r := newRepo(t)
	err := r.Create(context.Background(), &Vehicle{
		ID:          uuid.NewString(),
		PlateNumber: "T-001",
		State:       State("flying"),
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSetState(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	v := seed(t, r, StateActive, 0)

	require.NoError(t, r.SetState(ctx, nil, v.ID, StateInMaintenance))
	got, err := r.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateInMaintenance, got.State)

	// 写相同值不报错（0 行更新不等于不存在）
	require.NoError(t, r.SetState(ctx, nil, v.ID, StateInMaintenance))

	require.Equal(t, apperr.KindValidation, apperr.KindOf(r.SetState(ctx, nil, v.ID, State("flying"))))
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(r.SetState(ctx, nil, uuid.NewString(), StateActive)))
}

func TestAdvanceOdometerIsMonotonic(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	v := seed(t, r, StateActive, 50000)

	require.NoError(t, r.AdvanceOdometer(ctx, nil, v.ID, 50320))
	got, err := r.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.EqualValues(t, 50320, got.Odometer)

	// 迟到的旧读数：不回退也不报错
	require.NoError(t, r.AdvanceOdometer(ctx, nil, v.ID, 49000))
	got, err = r.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.EqualValues(t, 50320, got.Odometer)

	require.Equal(t, apperr.KindValidation, apperr.KindOf(r.AdvanceOdometer(ctx, nil, v.ID, -1)))
}

func TestList(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seed(t, r, StateActive, 0)
	seed(t, r, StateActive, 0)
	seed(t, r, StateInShop, 0)

	all, total, err := r.List(ctx, "", 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, all, 3)

	active, total, err := r.List(ctx, StateActive, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, active, 2)

	// 分页
	page, total, err := r.List(ctx, "", 2, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, page, 1)
}

func TestFindByIDNotFound(t *testing.T) {
	r := newRepo(t)
	_, err := r.FindByID(context.Background(), uuid.NewString())
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
