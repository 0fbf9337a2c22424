package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finsync/internal/core"
	"finsync/internal/remote"
	"finsync/internal/remote/memory"
	"finsync/internal/remote/server"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*memory.Remote, *Client) {
	t.Helper()

	backend := memory.New()
	srv := server.New(server.Options{Token: testToken})
	server.Mount[core.Transaction](srv, remote.Paths[core.KindTransaction], backend.Transactions)
	server.Mount[core.Category](srv, remote.Paths[core.KindCategory], backend.Categories)
	srv.MountTotals(backend)
	srv.MountProfiles(backend)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, WithToken(testToken), WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return backend, c
}

func TestResource_CRUD(t *testing.T) {
	backend, c := newTestServer(t)
	ctx := context.Background()
	txs := NewResource[core.Transaction](c, remote.Paths[core.KindTransaction])

	created, err := txs.Create(ctx, core.Transaction{
		Meta:       core.Meta{ID: core.NewPlaceholderID(), OwnerID: 7, Pending: true},
		Amount:     decimal.RequireFromString("12.50"),
		CategoryID: 3,
		Timestamp:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Type:       core.Expense,
	})
	require.NoError(t, err)
	assert.Positive(t, created.ID, "server must assign a remote id")
	assert.False(t, created.Pending)
	assert.Equal(t, 1, backend.Transactions.Len())

	got, err := txs.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.5")))

	note := "groceries"
	got.Note = &note
	updated, err := txs.Update(ctx, got.ID, got)
	require.NoError(t, err)
	require.NotNil(t, updated.Note)
	assert.Equal(t, "groceries", *updated.Note)

	list, err := txs.ListByOwner(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := txs.ListByOwner(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, txs.Delete(ctx, created.ID))
	err = txs.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestResource_ErrorMapping(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	cats := NewResource[core.Category](c, remote.Paths[core.KindCategory])

	_, err := cats.Create(ctx, core.Category{Meta: core.Meta{OwnerID: 1}, Type: core.Expense})
	assert.ErrorIs(t, err, remote.ErrValidation)

	_, err = cats.Get(ctx, 999)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.NotEmpty(t, se.Body)
}

func TestClient_Unauthorized(t *testing.T) {
	_, c := newTestServer(t)
	c.token = "wrong"

	_, err := NewResource[core.Category](c, remote.Paths[core.KindCategory]).ListByOwner(context.Background(), 1)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
}

func TestClient_TotalsAndProfiles(t *testing.T) {
	backend, c := newTestServer(t)
	ctx := context.Background()

	backend.Transactions.Put(
		core.Transaction{Meta: core.Meta{ID: 1, OwnerID: 4}, Amount: decimal.NewFromInt(100), CategoryID: 1,
			Timestamp: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Type: core.Income},
		core.Transaction{Meta: core.Meta{ID: 2, OwnerID: 4}, Amount: decimal.NewFromInt(30), CategoryID: 1,
			Timestamp: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Type: core.Expense},
	)
	backend.PutProfile(core.Profile{UserID: 4, Name: "Ada"})

	monthly, err := c.MonthlyTotals(ctx, 4)
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	assert.Equal(t, 1, monthly[0].Month)

	yearly, err := c.YearlyTotals(ctx, 4)
	require.NoError(t, err)
	require.Len(t, yearly, 1)
	assert.True(t, yearly[0].Income.Equal(decimal.NewFromInt(100)))
	assert.True(t, yearly[0].Expense.Equal(decimal.NewFromInt(30)))

	p, err := c.GetProfile(ctx, 4)
	require.NoError(t, err)
	p.Balance = decimal.NewFromInt(70)
	updated, err := c.UpdateProfile(ctx, 4, p)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.NewFromInt(70)))

	_, err = c.GetProfile(ctx, 5)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestClient_TransportFailures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	c, err := New(slow.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.GetProfile(ctx, 1)
	assert.ErrorIs(t, err, remote.ErrTimeout)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	c, err = New(closed.URL)
	require.NoError(t, err)
	_, err = c.GetProfile(context.Background(), 1)
	assert.ErrorIs(t, err, remote.ErrNetwork)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}
