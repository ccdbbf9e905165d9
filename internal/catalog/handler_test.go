package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/storekeeper-erp/storekeeper-erp/internal/rbac"
	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

func newCatalogRouter(svc *Service, identity *shared.Identity) http.Handler {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	handler := NewHandler(logger, svc, rbac.Middleware{Logger: logger})
	r := chi.NewRouter()
	if identity != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithIdentity(req.Context(), identity)))
			})
		})
	}
	handler.MountRoutes(r)
	return r
}

func getPath(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerGetByIDOrName(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockLedger{repo: repo})
	router := newCatalogRouter(svc, &shared.Identity{ID: 2, Name: "Mo", Role: "storemanager"})

	created, err := svc.Create(context.Background(), CreateInput{Name: "Toner", Category: "printing", OpeningStock: 3})
	require.NoError(t, err)

	rec := getPath(t, router, "/products/Toner")
	require.Equal(t, http.StatusOK, rec.Code)
	var byName Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byName))
	require.Equal(t, created.ID, byName.ID)

	rec = getPath(t, router, "/products/"+strconv.FormatInt(created.ID, 10))
	require.Equal(t, http.StatusOK, rec.Code)
	var byID Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &byID))
	require.Equal(t, "Toner", byID.Name)

	rec = getPath(t, router, "/products/Hoverboard")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreateRequiresCategory(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockLedger{repo: repo})
	router := newCatalogRouter(svc, &shared.Identity{ID: 2, Name: "Mo", Role: "storemanager"})

	payload, err := json.Marshal(map[string]any{"product_name": "Eraser", "opening_stock": 1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
