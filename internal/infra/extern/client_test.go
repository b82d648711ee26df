//go:build unit

package extern_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"seatbridge/internal/infra/extern"
	"seatbridge/internal/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.Handler, timeout time.Duration) (client interface {
	Book(ctx context.Context, eventKey string, seatIDs []string, orderRef uuid.UUID) error
	Release(ctx context.Context, eventKey string, seatIDs []string) error
	Occupancy(ctx context.Context, eventKey string, seatIDs []string) (map[string]uuid.UUID, error)
}, cleanup func(),
) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := extern.NewClient(config.AuthorityConfig{
		BaseURL: srv.URL,
		Token:   "test-token",
		Timeout: timeout,
	})
	return c, srv.Close
}

func TestBook(t *testing.T) {
	orderRef := uuid.New()

	t.Run("success sends authenticated request", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotBody map[string]any

		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusCreated)
		}), time.Second)
		defer cleanup()

		err := client.Book(context.Background(), "E1", []string{"A1", "A2"}, orderRef)
		require.NoError(t, err)

		assert.Equal(t, "/events/E1/bookings", gotPath)
		assert.Equal(t, "Bearer test-token", gotAuth)
		assert.Equal(t, []any{"A1", "A2"}, gotBody["seats"])
		assert.Equal(t, orderRef.String(), gotBody["order_ref"])
	})

	t.Run("conflict maps to ErrSeatsUnavailable", func(t *testing.T) {
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}), time.Second)
		defer cleanup()

		err := client.Book(context.Background(), "E1", []string{"A1"}, orderRef)
		require.ErrorIs(t, err, extern.ErrSeatsUnavailable)
	})

	t.Run("server error maps to ErrService", func(t *testing.T) {
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}), time.Second)
		defer cleanup()

		err := client.Book(context.Background(), "E1", []string{"A1"}, orderRef)
		require.ErrorIs(t, err, extern.ErrService)
	})

	t.Run("slow authority maps to ErrTimeout", func(t *testing.T) {
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			w.WriteHeader(http.StatusOK)
		}), 50*time.Millisecond)
		defer cleanup()

		err := client.Book(context.Background(), "E1", []string{"A1"}, orderRef)
		require.ErrorIs(t, err, extern.ErrTimeout)
	})

	t.Run("empty seat list is rejected without a call", func(t *testing.T) {
		called := false
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}), time.Second)
		defer cleanup()

		err := client.Book(context.Background(), "E1", nil, orderRef)
		require.Error(t, err)
		assert.False(t, called)
	})
}

func TestRelease(t *testing.T) {
	t.Run("repeated release is an idempotent no-op", func(t *testing.T) {
		calls := 0
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusOK)
				return
			}
			// Nothing held anymore on the second call
			w.WriteHeader(http.StatusNotFound)
		}), time.Second)
		defer cleanup()

		require.NoError(t, client.Release(context.Background(), "E1", []string{"A1"}))
		require.NoError(t, client.Release(context.Background(), "E1", []string{"A1"}))
		assert.Equal(t, 2, calls)
	})

	t.Run("server error maps to ErrService", func(t *testing.T) {
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}), time.Second)
		defer cleanup()

		err := client.Release(context.Background(), "E1", []string{"A1"})
		require.ErrorIs(t, err, extern.ErrService)
	})
}

func TestOccupancy(t *testing.T) {
	holder := uuid.New()

	t.Run("parses occupied seats with holding order refs", func(t *testing.T) {
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "A1,A2", r.URL.Query().Get("seats"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"occupied": []map[string]any{
					{"seat_id": "A1", "order_ref": holder.String()},
				},
			})
		}), time.Second)
		defer cleanup()

		occupied, err := client.Occupancy(context.Background(), "E1", []string{"A1", "A2"})
		require.NoError(t, err)
		require.Len(t, occupied, 1)
		assert.Equal(t, holder, occupied["A1"])
	})

	t.Run("malformed body maps to ErrService", func(t *testing.T) {
		client, cleanup := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}), time.Second)
		defer cleanup()

		_, err := client.Occupancy(context.Background(), "E1", []string{"A1"})
		require.ErrorIs(t, err, extern.ErrService)
	})
}
