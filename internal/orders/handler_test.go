package orders

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/storekeeper-erp/storekeeper-erp/internal/rbac"
	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

func newTestRouter(svc *Service, identity *shared.Identity) http.Handler {
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

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateRequiresIdentity(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubLedger{})
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/orders", map[string]any{"order_name": "x", "dept_id": "finance", "items": []any{}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCreateForbiddenForRegistrar(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubLedger{})
	router := newTestRouter(svc, &shared.Identity{ID: 3, Name: "Rita", Role: "registrar"})

	rec := postJSON(t, router, "/orders", map[string]any{
		"order_name": "Restock",
		"dept_id":    "finance",
		"items":      []any{map[string]any{"product_name": "A4 Paper", "demand_quantity": 5}},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerCreateAndReviewFlow(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubLedger{})
	deptRouter := newTestRouter(svc, &shared.Identity{ID: 7, Name: "Priya", Role: "department"})
	managerRouter := newTestRouter(svc, &shared.Identity{ID: 2, Name: "Mo", Role: "storemanager"})

	rec := postJSON(t, deptRouter, "/orders", map[string]any{
		"order_name": "Restock",
		"dept_id":    "finance",
		"items": []any{
			map[string]any{"product_name": "A4 Paper", "demand_quantity": 5},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "Restock", created.Name)
	require.Len(t, created.Items, 1)

	rec = postJSON(t, managerRouter, "/orders/"+created.ID.String()+"/manager-review", map[string]any{
		"approve": true,
		"allotments": []any{
			map[string]any{"item_id": created.Items[0].ID, "manager_alloted_quantity": 4},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var reviewed Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviewed))
	require.Equal(t, ApprovalApproved, reviewed.ManagerState)
	// The reviewer identity from the gateway headers is recorded.
	require.Equal(t, "Mo", reviewed.StoreManagerName)
	require.Equal(t, int64(4), *reviewed.Items[0].ManagerAlloted)

	// A second decision on the same stage conflicts.
	rec = postJSON(t, managerRouter, "/orders/"+created.ID.String()+"/manager-review", map[string]any{"approve": false})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubLedger{})
	router := newTestRouter(svc, &shared.Identity{ID: 7, Name: "Priya", Role: "department"})

	rec := postJSON(t, router, "/orders", map[string]any{"order_name": "", "dept_id": "finance", "items": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
