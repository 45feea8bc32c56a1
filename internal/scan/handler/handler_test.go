package handler_test

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	banservice "passage/internal/ban/service"
	banstore "passage/internal/ban/store"
	"passage/internal/scan"
	"passage/internal/scan/handler"
	"passage/internal/visit/models"
	"passage/internal/visit/qr"
	visitservice "passage/internal/visit/service"
	"passage/internal/visit/store"
	id "passage/pkg/domain"
	"passage/pkg/testutil"
)

func newScanRouter(t *testing.T) (http.Handler, string) {
	t.Helper()

	visits := store.NewInMemory()
	bans := banservice.New(banstore.NewInMemory())
	issuer, err := qr.NewIssuer("0123456789abcdef0123456789abcdef", 0)
	require.NoError(t, err)
	visitSvc := visitservice.New(visits, visits, issuer, bans)
	processor := scan.New(visits, bans)

	req := testutil.NewRequest(t, http.MethodGet, "/")
	created, err := visitSvc.CreateVisit(req.Context(), id.NewHostID(), &models.CreateVisitRequest{
		BuildingID:    id.NewBuildingID().String(),
		Title:         "Dinner guests",
		ExpectedStart: time.Now().Add(time.Hour),
		Visitors:      []models.VisitorInput{{Name: "Ada", Phone: "+15550001111"}},
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	handler.New(processor, slog.Default()).Register(r)
	return r, created.QRToken
}

func TestHandleScan(t *testing.T) {
	t.Run("a valid code is admitted", func(t *testing.T) {
		router, token := newScanRouter(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/scan", map[string]string{
			"code":       token,
			"gate_label": "north",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		result := testutil.UnmarshalResponse[scan.Result](t, rr)
		assert.True(t, result.Success)
		assert.Equal(t, scan.OutcomeAdmitted, result.Outcome)
		require.NotNil(t, result.Visit)
		assert.True(t, result.Visit.Entry)
	})

	t.Run("an unknown code is a 200 rejection", func(t *testing.T) {
		router, _ := newScanRouter(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/scan", map[string]string{
			"code": "not-a-token",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		result := testutil.UnmarshalResponse[scan.Result](t, rr)
		assert.False(t, result.Success)
		assert.Equal(t, scan.OutcomeCodeNotFound, result.Outcome)
	})

	t.Run("a missing code is a validation error", func(t *testing.T) {
		router, _ := newScanRouter(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/scan", map[string]string{})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})

	t.Run("a stated officer id is carried through", func(t *testing.T) {
		router, token := newScanRouter(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/scan", map[string]string{
			"code":       token,
			"officer_id": id.NewOfficerID().String(),
			"gate_label": "north",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		result := testutil.UnmarshalResponse[scan.Result](t, rr)
		assert.Equal(t, scan.OutcomeAdmitted, result.Outcome)
	})

	t.Run("a malformed officer id is a bad request", func(t *testing.T) {
		router, token := newScanRouter(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/scan", map[string]string{
			"code":       token,
			"officer_id": "officer-1",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("an unknown scan kind is a validation error", func(t *testing.T) {
		router, token := newScanRouter(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/scan", map[string]string{
			"code":      token,
			"scan_kind": "sideways",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})
}
