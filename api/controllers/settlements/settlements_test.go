package settlements

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/api/middleware"
	internalsettlements "github.com/angelmondragon/marketplace-orders/internal/settlements"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type stubSettlementsService struct {
	list   func(ctx context.Context, actor types.Actor, params internalsettlements.ListParams) (*internalsettlements.SettlementList, error)
	update func(ctx context.Context, input internalsettlements.UpdateStatusInput) (*models.Settlement, error)
}

func (s *stubSettlementsService) Sweep(ctx context.Context) (internalsettlements.SweepResult, error) {
	return internalsettlements.SweepResult{}, nil
}

func (s *stubSettlementsService) Get(ctx context.Context, actor types.Actor, settlementID uuid.UUID) (*models.Settlement, error) {
	return &models.Settlement{ID: settlementID}, nil
}

func (s *stubSettlementsService) List(ctx context.Context, actor types.Actor, params internalsettlements.ListParams) (*internalsettlements.SettlementList, error) {
	if s.list != nil {
		return s.list(ctx, actor, params)
	}
	return &internalsettlements.SettlementList{}, nil
}

func (s *stubSettlementsService) UpdateStatus(ctx context.Context, input internalsettlements.UpdateStatusInput) (*models.Settlement, error) {
	if s.update != nil {
		return s.update(ctx, input)
	}
	return &models.Settlement{ID: input.SettlementID}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func request(method, target, body string, actor types.Actor, params ...string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithActor(req.Context(), actor)
	rc := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rc.URLParams.Add(params[i], params[i+1])
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
}

func TestListForwardsFilters(t *testing.T) {
	admin := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	sellerID := uuid.New()
	var captured internalsettlements.ListParams
	svc := &stubSettlementsService{
		list: func(ctx context.Context, actor types.Actor, params internalsettlements.ListParams) (*internalsettlements.SettlementList, error) {
			captured = params
			return &internalsettlements.SettlementList{}, nil
		},
	}

	resp := httptest.NewRecorder()
	List(svc, testLogger())(resp, request(http.MethodGet, "/api/v1/settlements?status=pending&sellerId="+sellerID.String(), "", admin))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.SellerID == nil || *captured.SellerID != sellerID {
		t.Fatalf("seller filter not forwarded")
	}
	if captured.Status == nil || *captured.Status != enums.SettlementStatusPending {
		t.Fatalf("status filter not forwarded")
	}

	resp = httptest.NewRecorder()
	List(svc, testLogger())(resp, request(http.MethodGet, "/api/v1/settlements?status=bogus", "", admin))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdateStatusMapsPayloadAndErrors(t *testing.T) {
	admin := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	settlementID := uuid.New()
	var captured internalsettlements.UpdateStatusInput
	svc := &stubSettlementsService{
		update: func(ctx context.Context, input internalsettlements.UpdateStatusInput) (*models.Settlement, error) {
			captured = input
			if input.Status == enums.SettlementStatusFailed {
				return nil, pkgerrors.Rejection(pkgerrors.CodeStateConflict, pkgerrors.ReasonAlreadySettled, "settlement already paid")
			}
			return &models.Settlement{ID: input.SettlementID}, nil
		},
	}

	body := `{"status":"paid","transaction_ref":" UTR123 "}`
	resp := httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, request(http.MethodPatch, "/api/v1/admin/settlements/x/status", body, admin, "settlementId", settlementID.String()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.SettlementID != settlementID || captured.Status != enums.SettlementStatusPaid || captured.TransactionRef != "UTR123" {
		t.Fatalf("unexpected input %+v", captured)
	}

	resp = httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, request(http.MethodPatch, "/api/v1/admin/settlements/x/status", `{"status":"failed"}`, admin, "settlementId", settlementID.String()))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, request(http.MethodPatch, "/api/v1/admin/settlements/x/status", `{"status":"pending"}`, admin, "settlementId", settlementID.String()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pending target got %d", resp.Code)
	}
}
