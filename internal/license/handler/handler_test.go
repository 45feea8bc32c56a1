package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passage/internal/license/handler"
	"passage/internal/license/models"
	licenseservice "passage/internal/license/service"
	licensestore "passage/internal/license/store"
	"passage/internal/platform/middleware"
	id "passage/pkg/domain"
	"passage/pkg/testutil"
)

func newLicenseRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := licenseservice.New(licensestore.NewInMemory())
	r := chi.NewRouter()
	handler.New(svc, slog.Default()).Register(r)
	return r
}

func asAdmin(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyActorRole, "admin"))
}

func TestHandleSetCap(t *testing.T) {
	router := newLicenseRouter(t)
	buildingID := id.NewBuildingID()

	t.Run("admin sets the cap", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/buildings/"+buildingID.String()+"/licenses", map[string]int{
			"total_licenses": 2,
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		state := testutil.UnmarshalResponse[models.BuildingLicenseState](t, rr)
		assert.Equal(t, 2, state.TotalLicenses)
		assert.Equal(t, 0, state.UsedLicenses)
	})

	t.Run("a non-admin is rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPut, "/buildings/"+buildingID.String()+"/licenses", map[string]int{
			"total_licenses": 2,
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	t.Run("a negative cap is a validation error", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/buildings/"+buildingID.String()+"/licenses", map[string]int{
			"total_licenses": -1,
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})

	t.Run("a malformed building id is rejected", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/buildings/not-a-uuid/licenses", map[string]int{
			"total_licenses": 2,
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestHandleOnboard(t *testing.T) {
	router := newLicenseRouter(t)
	buildingID := id.NewBuildingID()

	setCap := asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/buildings/"+buildingID.String()+"/licenses", map[string]int{
		"total_licenses": 1,
	}))
	require.Equal(t, http.StatusOK, testutil.DoRequest(router, setCap).Code)

	userID := id.NewUserID()

	t.Run("onboards a user within the cap", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+buildingID.String()+"/users", map[string]string{
			"user_id": userID.String(),
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)

		get := asAdmin(testutil.NewRequest(t, http.MethodGet, "/buildings/"+buildingID.String()+"/licenses"))
		state := testutil.UnmarshalResponse[models.BuildingLicenseState](t, testutil.DoRequest(router, get))
		assert.Equal(t, 1, state.UsedLicenses)
	})

	t.Run("onboarding the same user twice conflicts", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+buildingID.String()+"/users", map[string]string{
			"user_id": userID.String(),
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	t.Run("a full building rejects new users", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+buildingID.String()+"/users", map[string]string{
			"user_id": id.NewUserID().String(),
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	t.Run("an unknown building is 404", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+id.NewBuildingID().String()+"/users", map[string]string{
			"user_id": id.NewUserID().String(),
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("a missing user id is a validation error", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+buildingID.String()+"/users", map[string]string{}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})
}

func TestHandleDeactivate(t *testing.T) {
	router := newLicenseRouter(t)
	buildingID := id.NewBuildingID()
	userID := id.NewUserID()

	setCap := asAdmin(testutil.NewJSONRequest(t, http.MethodPut, "/buildings/"+buildingID.String()+"/licenses", map[string]int{
		"total_licenses": 1,
	}))
	require.Equal(t, http.StatusOK, testutil.DoRequest(router, setCap).Code)
	onboard := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+buildingID.String()+"/users", map[string]string{
		"user_id": userID.String(),
	}))
	require.Equal(t, http.StatusNoContent, testutil.DoRequest(router, onboard).Code)

	t.Run("releases the user's license", func(t *testing.T) {
		req := asAdmin(testutil.NewRequest(t, http.MethodDelete, "/buildings/"+buildingID.String()+"/users/"+userID.String()))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)

		get := asAdmin(testutil.NewRequest(t, http.MethodGet, "/buildings/"+buildingID.String()+"/licenses"))
		state := testutil.UnmarshalResponse[models.BuildingLicenseState](t, testutil.DoRequest(router, get))
		assert.Equal(t, 0, state.UsedLicenses)
	})

	t.Run("the freed license can be reused", func(t *testing.T) {
		req := asAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/buildings/"+buildingID.String()+"/users", map[string]string{
			"user_id": id.NewUserID().String(),
		}))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("deactivating an inactive user is 404", func(t *testing.T) {
		req := asAdmin(testutil.NewRequest(t, http.MethodDelete, "/buildings/"+buildingID.String()+"/users/"+userID.String()))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}
