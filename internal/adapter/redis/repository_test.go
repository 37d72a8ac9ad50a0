package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"binstatus/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	hashes map[string]map[string]string
	zsets  map[string][]*redis.Z

	getErr error
	setErr error
	zErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string][]*redis.Z),
	}
}

func (f *fakeClient) HGetAll(_ context.Context, key string) *redis.StringStringMapCmd {
	if f.getErr != nil {
		return redis.NewStringStringMapResult(nil, f.getErr)
	}
	cp := make(map[string]string)
	for k, v := range f.hashes[key] {
		cp[k] = v
	}
	return redis.NewStringStringMapResult(cp, nil)
}

func (f *fakeClient) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.setErr != nil {
		return redis.NewIntResult(0, f.setErr)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeClient) ZAdd(_ context.Context, key string, members ...*redis.Z) *redis.IntCmd {
	if f.zErr != nil {
		return redis.NewIntResult(0, f.zErr)
	}
	f.zsets[key] = append(f.zsets[key], members...)
	return redis.NewIntResult(int64(len(members)), nil)
}

var at = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func TestNew_RequiresPrefixes(t *testing.T) {
	var cerr *domain.ConfigurationError
	_, err := New(newFakeClient(), "", "reports")
	require.ErrorAs(t, err, &cerr)
	_, err = New(newFakeClient(), "bins", "")
	require.ErrorAs(t, err, &cerr)
}

func TestUpdateStatus(t *testing.T) {
	c := newFakeClient()
	repo, err := New(c, "bins", "reports")
	require.NoError(t, err)
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, repo.UpdateStatus(ctx, id, domain.ClampFillLevel(5), at))
	require.NoError(t, repo.UpdateStatus(ctx, id, domain.ClampFillLevel(8), at.Add(time.Second)))

	h := c.hashes["bins:"+id.String()]
	assert.Equal(t, "6", h["status"])
	assert.Equal(t, "2", h["reportsCount"])
	assert.Equal(t, "2026-06-01T08:00:01Z", h["lastUpdated"])
	assert.Equal(t, id.String(), h["binId"])
}

func TestUpdateStatus_Errors(t *testing.T) {
	c := newFakeClient()
	repo, _ := New(c, "bins", "reports")
	id := uuid.New()
	var serr *domain.StorageError

	c.getErr = errors.New("connection refused")
	err := repo.UpdateStatus(context.Background(), id, domain.FillLevelFull, at)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "get bin", serr.Op)

	c.getErr = nil
	c.hashes["bins:"+id.String()] = map[string]string{"status": "abc"}
	err = repo.UpdateStatus(context.Background(), id, domain.FillLevelFull, at)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "decode bin", serr.Op)

	delete(c.hashes, "bins:"+id.String())
	c.setErr = errors.New("READONLY")
	err = repo.UpdateStatus(context.Background(), id, domain.FillLevelFull, at)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "update bin", serr.Op)
}

func TestAddReport(t *testing.T) {
	c := newFakeClient()
	repo, _ := New(c, "bins", "reports")
	id := uuid.New()

	require.NoError(t, repo.AddReport(context.Background(), id, domain.ClampFillLevel(2), at))

	members := c.zsets["reports:"+id.String()]
	require.Len(t, members, 1)
	assert.Equal(t, float64(at.UnixNano()), members[0].Score)
	assert.JSONEq(t,
		fmt.Sprintf(`{"binId":%q,"createdAt":"2026-06-01T08:00:00Z","status":2}`, id.String()),
		members[0].Member.(string))
	assert.Empty(t, c.hashes, "AddReport must not touch the bin")

	c.zErr = errors.New("OOM")
	var serr *domain.StorageError
	require.ErrorAs(t, repo.AddReport(context.Background(), id, domain.FillLevelEmpty, at), &serr)
}
