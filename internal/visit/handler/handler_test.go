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
	"passage/internal/visit/handler"
	"passage/internal/visit/models"
	"passage/internal/visit/qr"
	visitservice "passage/internal/visit/service"
	"passage/internal/visit/store"
	id "passage/pkg/domain"
	"passage/pkg/testutil"
)

type fixture struct {
	router     http.Handler
	bans       *banservice.Service
	hostID     id.HostID
	buildingID id.BuildingID
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	visits := store.NewInMemory()
	bans := banservice.New(banstore.NewInMemory())
	issuer, err := qr.NewIssuer("0123456789abcdef0123456789abcdef", 0)
	require.NoError(t, err)

	svc := visitservice.New(visits, visits, issuer, bans)
	r := chi.NewRouter()
	handler.New(svc, slog.Default()).Register(r)

	return &fixture{
		router:     r,
		bans:       bans,
		hostID:     id.NewHostID(),
		buildingID: id.NewBuildingID(),
		now:        time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) createBody() map[string]any {
	return map[string]any{
		"building_id":    f.buildingID.String(),
		"title":          "Dinner guests",
		"expected_start": f.now.Add(2 * time.Hour),
		"visitors": []map[string]string{
			{"name": "Ada", "phone": "+15550001111"},
		},
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *models.CreatedVisit {
	t.Helper()
	req := testutil.WithActor(testutil.NewJSONRequest(t, method, path, body), f.hostID.String())
	req = testutil.WithFrozenTime(req, f.now)
	rr := testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[models.CreatedVisit](t, rr)
}

func TestHandleCreate(t *testing.T) {
	t.Run("creates a visit and returns the qr material", func(t *testing.T) {
		f := newFixture(t)
		created := f.do(t, http.MethodPost, "/visits", f.createBody())
		assert.NotEmpty(t, created.VisitID)
		assert.NotEmpty(t, created.QRToken)
		assert.Equal(t, f.now.Add(24*time.Hour), created.QRExpiry.UTC())
	})

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		f := newFixture(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/visits", f.createBody())
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("rejects a request without visitors", func(t *testing.T) {
		f := newFixture(t)
		body := f.createBody()
		delete(body, "visitors")
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/visits", body), f.hostID.String())
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})

	t.Run("rejects a banned visitor with forbidden", func(t *testing.T) {
		f := newFixture(t)
		ctx := testutil.WithFrozenTime(testutil.NewRequest(t, http.MethodGet, "/"), f.now).Context()
		_, err := f.bans.CreateBan(ctx, banservice.CreateBanRequest{
			BuildingID: f.buildingID,
			Phone:      "+15550001111",
			Reason:     "trespass",
		})
		require.NoError(t, err)

		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/visits", f.createBody()), f.hostID.String())
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})
}

func TestHandleGet(t *testing.T) {
	f := newFixture(t)
	created := f.do(t, http.MethodPost, "/visits", f.createBody())

	t.Run("returns the visit with its attachments", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/visits/"+created.VisitID)
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusOK(t, rr)
		details := testutil.UnmarshalResponse[visitservice.VisitDetails](t, rr)
		assert.Equal(t, created.VisitID, details.Visit.ID.String())
		assert.Len(t, details.Visitors, 1)
	})

	t.Run("unknown visit is 404", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/visits/"+id.NewVisitID().String())
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/visits/not-a-uuid")
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestHandleCancel(t *testing.T) {
	f := newFixture(t)
	created := f.do(t, http.MethodPost, "/visits", f.createBody())
	path := "/visits/" + created.VisitID + "/cancel"

	t.Run("cancels the visit", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, path, nil), f.hostID.String())
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "cancelled")
	})

	t.Run("cancelling twice conflicts", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, path, nil), f.hostID.String())
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})
}

func TestHandleReissue(t *testing.T) {
	f := newFixture(t)
	created := f.do(t, http.MethodPost, "/visits", f.createBody())

	req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/visits/"+created.VisitID+"/reissue", nil), f.hostID.String())
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatusOK(t, rr)

	reissued := testutil.UnmarshalResponse[models.CreatedVisit](t, rr)
	assert.NotEqual(t, created.QRToken, reissued.QRToken)
}

func TestHandleCodePNG(t *testing.T) {
	f := newFixture(t)
	created := f.do(t, http.MethodPost, "/visits", f.createBody())

	t.Run("renders a png", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/visits/"+created.VisitID+"/qr.png")
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
		assert.NotEmpty(t, rr.Body.Bytes())
	})

	t.Run("rejects out-of-range sizes", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/visits/"+created.VisitID+"/qr.png?size=9999")
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})
}
