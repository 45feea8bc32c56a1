package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passage/internal/ban/handler"
	"passage/internal/ban/models"
	banservice "passage/internal/ban/service"
	banstore "passage/internal/ban/store"
	"passage/internal/platform/middleware"
	id "passage/pkg/domain"
	"passage/pkg/testutil"
)

func newBanRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := banservice.New(banstore.NewInMemory())
	r := chi.NewRouter()
	handler.New(svc, slog.Default()).Register(r)
	return r
}

func withRole(req *http.Request, role string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyActorRole, role))
}

func TestHandleCreateBan(t *testing.T) {
	buildingID := id.NewBuildingID()

	t.Run("admin creates a building-wide ban", func(t *testing.T) {
		router := newBanRouter(t)
		req := withRole(testutil.NewJSONRequest(t, http.MethodPost, "/bans", map[string]string{
			"building_id": buildingID.String(),
			"phone":       "+15550001111",
			"reason":      "trespass",
		}), "admin")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)

		ban := testutil.UnmarshalResponse[models.Ban](t, rr)
		assert.Equal(t, models.ScopeSystem, ban.Scope())
		assert.False(t, ban.Lifted)
	})

	t.Run("a non-admin cannot create a building-wide ban", func(t *testing.T) {
		router := newBanRouter(t)
		req := withRole(testutil.NewJSONRequest(t, http.MethodPost, "/bans", map[string]string{
			"building_id": buildingID.String(),
			"phone":       "+15550001111",
			"reason":      "trespass",
		}), "host")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	t.Run("a host creates a personal ban", func(t *testing.T) {
		router := newBanRouter(t)
		hostID := id.NewHostID()
		req := withRole(testutil.NewJSONRequest(t, http.MethodPost, "/bans", map[string]string{
			"building_id": buildingID.String(),
			"host_id":     hostID.String(),
			"phone":       "+15550002222",
			"reason":      "noise",
		}), "host")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)

		ban := testutil.UnmarshalResponse[models.Ban](t, rr)
		assert.Equal(t, models.ScopePersonal, ban.Scope())
	})

	t.Run("a missing phone is a validation error", func(t *testing.T) {
		router := newBanRouter(t)
		req := withRole(testutil.NewJSONRequest(t, http.MethodPost, "/bans", map[string]string{
			"building_id": buildingID.String(),
			"reason":      "trespass",
		}), "admin")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})
}

func TestHandleUnban(t *testing.T) {
	router := newBanRouter(t)
	buildingID := id.NewBuildingID()

	create := withRole(testutil.NewJSONRequest(t, http.MethodPost, "/bans", map[string]string{
		"building_id": buildingID.String(),
		"phone":       "+15550001111",
		"reason":      "trespass",
	}), "admin")
	rr := testutil.DoRequest(router, create)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ban := testutil.UnmarshalResponse[models.Ban](t, rr)

	t.Run("lifts the ban", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/bans/"+ban.ID.String()+"/unban", map[string]string{
			"reason": "appeal granted",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "lifted", true)
	})

	t.Run("lifting twice conflicts", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/bans/"+ban.ID.String()+"/unban", nil)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	t.Run("unknown ban is 404", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/bans/"+id.NewBanID().String()+"/unban", nil)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestHandleListBans(t *testing.T) {
	router := newBanRouter(t)
	buildingID := id.NewBuildingID()

	create := withRole(testutil.NewJSONRequest(t, http.MethodPost, "/bans", map[string]string{
		"building_id": buildingID.String(),
		"phone":       "+15550001111",
		"reason":      "trespass",
	}), "admin")
	require.Equal(t, http.StatusCreated, testutil.DoRequest(router, create).Code)

	t.Run("lists the building's bans", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/bans?building_id="+buildingID.String())
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONHasKey(t, rr, "bans")
	})

	t.Run("requires a building id", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/bans")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})
}
