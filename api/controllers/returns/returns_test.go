package returns

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
	internalreturns "github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type stubReturnsService struct {
	create       func(ctx context.Context, input internalreturns.CreateReturnInput) (*models.Return, error)
	updateStatus func(ctx context.Context, input internalreturns.UpdateStatusInput) (*models.Return, error)
	resolve      func(ctx context.Context, input internalreturns.ResolveComplaintInput) (*models.Return, error)
	list         func(ctx context.Context, actor types.Actor, params internalreturns.ListParams) (*internalreturns.ReturnList, error)
}

func (s *stubReturnsService) Create(ctx context.Context, input internalreturns.CreateReturnInput) (*models.Return, error) {
	if s.create != nil {
		return s.create(ctx, input)
	}
	return &models.Return{}, nil
}

func (s *stubReturnsService) Get(ctx context.Context, actor types.Actor, returnID uuid.UUID) (*models.Return, error) {
	return &models.Return{ID: returnID}, nil
}

func (s *stubReturnsService) List(ctx context.Context, actor types.Actor, params internalreturns.ListParams) (*internalreturns.ReturnList, error) {
	if s.list != nil {
		return s.list(ctx, actor, params)
	}
	return &internalreturns.ReturnList{}, nil
}

func (s *stubReturnsService) UploadVideo(ctx context.Context, actor types.Actor, returnID uuid.UUID, videoURL string) (*models.Return, error) {
	return &models.Return{ID: returnID}, nil
}

func (s *stubReturnsService) ReviewVideo(ctx context.Context, actor types.Actor, returnID uuid.UUID, comments string) (*models.Return, error) {
	return &models.Return{ID: returnID}, nil
}

func (s *stubReturnsService) UpdateStatus(ctx context.Context, input internalreturns.UpdateStatusInput) (*models.Return, error) {
	if s.updateStatus != nil {
		return s.updateStatus(ctx, input)
	}
	return &models.Return{ID: input.ReturnID}, nil
}

func (s *stubReturnsService) FileComplaint(ctx context.Context, input internalreturns.ComplaintInput) (*models.Return, error) {
	return &models.Return{ID: input.ReturnID}, nil
}

func (s *stubReturnsService) ResolveComplaint(ctx context.Context, input internalreturns.ResolveComplaintInput) (*models.Return, error) {
	if s.resolve != nil {
		return s.resolve(ctx, input)
	}
	return &models.Return{ID: input.ReturnID}, nil
}

func (s *stubReturnsService) ApplyPenalties(ctx context.Context) (internalreturns.SweepResult, error) {
	return internalreturns.SweepResult{}, nil
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

func TestCreateReturnMapsPayload(t *testing.T) {
	actor := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleUser}
	orderID, itemID := uuid.New(), uuid.New()
	var captured internalreturns.CreateReturnInput
	svc := &stubReturnsService{
		create: func(ctx context.Context, input internalreturns.CreateReturnInput) (*models.Return, error) {
			captured = input
			return &models.Return{ID: uuid.New()}, nil
		},
	}

	body := `{"order_id":"` + orderID.String() + `","item_id":"` + itemID.String() + `","type":"return","reason":"damaged","description":"  box crushed  ","video_url":"https://cdn.example.com/unbox.mp4"}`
	resp := httptest.NewRecorder()
	Create(svc, testLogger())(resp, request(http.MethodPost, "/api/v1/returns", body, actor))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.ItemID != itemID {
		t.Fatalf("ids not forwarded: %+v", captured)
	}
	if captured.Type != enums.ReturnTypeReturn || captured.Reason != enums.ReturnReasonDamaged {
		t.Fatalf("unexpected type/reason %s/%s", captured.Type, captured.Reason)
	}
	if captured.Description != "box crushed" {
		t.Fatalf("description not sanitized: %q", captured.Description)
	}
	if captured.VideoURL == nil {
		t.Fatalf("video url dropped")
	}
}

func TestCreateReturnRejectsUnknownReason(t *testing.T) {
	actor := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleUser}
	body := `{"order_id":"` + uuid.NewString() + `","item_id":"` + uuid.NewString() + `","type":"return","reason":"changed_mind","description":"x"}`
	resp := httptest.NewRecorder()
	Create(&stubReturnsService{}, testLogger())(resp, request(http.MethodPost, "/api/v1/returns", body, actor))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdateStatusParsesCondition(t *testing.T) {
	sellerID := uuid.New()
	actor := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleSeller, SellerID: &sellerID}
	returnID := uuid.New()
	var captured internalreturns.UpdateStatusInput
	svc := &stubReturnsService{
		updateStatus: func(ctx context.Context, input internalreturns.UpdateStatusInput) (*models.Return, error) {
			captured = input
			return &models.Return{ID: input.ReturnID}, nil
		},
	}

	body := `{"status":"received","received_condition":"good","received_notes":"sealed"}`
	resp := httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, request(http.MethodPatch, "/api/v1/returns/x/status", body, actor, "returnId", returnID.String()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Status != enums.ReturnStatusReceived || captured.ReturnID != returnID {
		t.Fatalf("unexpected input %+v", captured)
	}
	if captured.ReceivedCondition == nil || *captured.ReceivedCondition != enums.ReceivedConditionGood {
		t.Fatalf("condition not parsed")
	}

	body = `{"status":"refunded","refund_amount":"-5"}`
	resp = httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, request(http.MethodPatch, "/api/v1/returns/x/status", body, actor, "returnId", returnID.String()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative refund got %d", resp.Code)
	}
}

func TestResolveComplaintRejectsPendingStatus(t *testing.T) {
	admin := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	called := false
	svc := &stubReturnsService{
		resolve: func(ctx context.Context, input internalreturns.ResolveComplaintInput) (*models.Return, error) {
			called = true
			return &models.Return{}, nil
		},
	}

	body := `{"status":"pending","resolution":"later"}`
	resp := httptest.NewRecorder()
	ResolveComplaint(svc, testLogger())(resp, request(http.MethodPost, "/api/v1/returns/x/complaint/resolve", body, admin, "returnId", uuid.NewString()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatalf("service must not run")
	}
}

func TestListParsesStatus(t *testing.T) {
	actor := types.Actor{UserID: uuid.New(), Role: enums.ActorRoleUser}
	var captured internalreturns.ListParams
	svc := &stubReturnsService{
		list: func(ctx context.Context, actor types.Actor, params internalreturns.ListParams) (*internalreturns.ReturnList, error) {
			captured = params
			return &internalreturns.ReturnList{}, nil
		},
	}

	resp := httptest.NewRecorder()
	List(svc, testLogger())(resp, request(http.MethodGet, "/api/v1/returns?status=approved&limit=5", "", actor))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.Status == nil || *captured.Status != enums.ReturnStatusApproved || captured.Limit != 5 {
		t.Fatalf("unexpected params %+v", captured)
	}
}
