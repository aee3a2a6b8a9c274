package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"instafund/internal/accounts"
	"instafund/internal/challenge"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type challengeMap map[string]*challenge.Account

func (m challengeMap) Get(_ context.Context, traderID string) (*challenge.Account, error) {
	acc, ok := m[traderID]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return acc, nil
}

func TestHandler_RegisterStatuses(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		expect func(pgxmock.PgxPoolIface)
		want   int
	}{
		{
			name: "invalid profile",
			body: `{"name":"Asha","email":"nope","password":"hunter2hunter2"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "email taken",
			body: `{"name":"Asha","email":"asha@example.com","password":"hunter2hunter2"}`,
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectBegin()
				m.ExpectQuery("insert into users").WillReturnError(&pgconn.PgError{Code: "23505"})
				m.ExpectRollback()
			},
			want: http.StatusConflict,
		},
		{
			name: "database down",
			body: `{"name":"Asha","email":"asha@example.com","password":"hunter2hunter2"}`,
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectBegin().WillReturnError(errors.New("connection refused"))
			},
			want: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newMockService(t)
			if tt.expect != nil {
				tt.expect(mock)
			}
			rec := httptest.NewRecorder()
			NewHandler(svc, nil).Register(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "connection refused")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_MeIncludesChallenge(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	acc, err := challenge.NewAccount("u-1", challenge.DefaultCatalog(), created)
	require.NoError(t, err)

	for _, tt := range []struct {
		name       string
		challenges challengeMap
		wantPhase  string
	}{
		{"before payment", challengeMap{}, ""},
		{"running challenge", challengeMap{"u-1": acc}, "eval1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newMockService(t)
			mock.ExpectQuery("SELECT id, email, name, phone, created_at").
				WithArgs("u-1").
				WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "phone", "created_at"}).
					AddRow("u-1", "asha@example.com", "Asha Rao", "", created))

			rec := httptest.NewRecorder()
			NewHandler(svc, tt.challenges).Me(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil), "u-1")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var out struct {
				Email     string            `json:"email"`
				Challenge *challengeSummary `json:"challenge"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, "asha@example.com", out.Email)
			if tt.wantPhase == "" {
				assert.Nil(t, out.Challenge)
				return
			}
			require.NotNil(t, out.Challenge)
			assert.Equal(t, tt.wantPhase, string(out.Challenge.Phase))
			assert.Equal(t, "50000.00", out.Challenge.Balance)
		})
	}
}
