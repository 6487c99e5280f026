package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type stubBookingService struct {
	bookResult     *models.BookResult
	bookErr        error
	cancelErr      error
	listResult     []models.Booking
	listErr        error
	scheduleResult []models.ClassAvailability
	scheduleErr    error
	lastUserID     int64
	lastBookInput  services.BookInput
	lastBookingID  int64
	lastFrom       time.Time
	lastLimit      int
}

func (s *stubBookingService) Book(_ context.Context, userID int64, input services.BookInput) (*models.BookResult, error) {
	s.lastUserID = userID
	s.lastBookInput = input
	return s.bookResult, s.bookErr
}

func (s *stubBookingService) Cancel(_ context.Context, userID int64, bookingID int64, _ time.Time) error {
	s.lastUserID = userID
	s.lastBookingID = bookingID
	return s.cancelErr
}

func (s *stubBookingService) ListBookings(_ context.Context, userID int64) ([]models.Booking, error) {
	s.lastUserID = userID
	return s.listResult, s.listErr
}

func (s *stubBookingService) ListSchedule(_ context.Context, from time.Time, limit int) ([]models.ClassAvailability, error) {
	s.lastFrom = from
	s.lastLimit = limit
	return s.scheduleResult, s.scheduleErr
}

func newBookingTestApp(handler *BookingHandler, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("role", "member")
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	app.Get("/api/v1/classes", handler.ListSchedule)
	app.Post("/api/v1/classes/:id/book", handler.BookClass)
	app.Get("/api/v1/bookings", handler.ListBookings)
	app.Post("/api/v1/bookings/:id/cancel", handler.CancelBooking)
	return app
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestBookClassReturnsCreated(t *testing.T) {
	remaining := 4
	passID := int64(3)
	service := &stubBookingService{
		bookResult: &models.BookResult{BookingID: 91, UsedCredit: true, RemainingCredits: &remaining, PassID: &passID},
	}
	app := newBookingTestApp(NewBookingHandler(service), "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classes/5/book", strings.NewReader(`{"preferred_pass_id": 3}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastUserID != 42 {
		t.Fatalf("expected user id 42, got %d", service.lastUserID)
	}
	if service.lastBookInput.ClassID != 5 {
		t.Fatalf("expected class id 5, got %d", service.lastBookInput.ClassID)
	}
	if service.lastBookInput.PreferredPassID == nil || *service.lastBookInput.PreferredPassID != 3 {
		t.Fatalf("expected preferred pass 3, got %v", service.lastBookInput.PreferredPassID)
	}

	var body models.BookResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.BookingID != 91 || !body.UsedCredit || body.RemainingCredits == nil || *body.RemainingCredits != 4 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestBookClassWithoutBody(t *testing.T) {
	service := &stubBookingService{bookResult: &models.BookResult{BookingID: 1}}
	app := newBookingTestApp(NewBookingHandler(service), "42")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classes/5/book", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastBookInput.PreferredPassID != nil {
		t.Fatalf("expected no preferred pass, got %v", *service.lastBookInput.PreferredPassID)
	}
}

func TestBookClassAlreadyBookedReturnsOK(t *testing.T) {
	service := &stubBookingService{bookResult: &models.BookResult{BookingID: 91, AlreadyBooked: true}}
	app := newBookingTestApp(NewBookingHandler(service), "42")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/classes/5/book", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["already_booked"] != true {
		t.Fatalf("expected already_booked true, got %v", body["already_booked"])
	}
}

func TestBookClassMapsErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: services.ErrClassNotFound, wantStatus: http.StatusNotFound, wantCode: "class_not_found"},
		{err: services.ErrClassFull, wantStatus: http.StatusConflict, wantCode: "class_full"},
		{err: services.ErrNoEligiblePass, wantStatus: http.StatusPaymentRequired, wantCode: "no_credits"},
		{err: fmt.Errorf("book class: %w", services.ErrStoreUnavailable), wantStatus: http.StatusServiceUnavailable, wantCode: "store_unavailable"},
		{err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			app := newBookingTestApp(NewBookingHandler(&stubBookingService{bookErr: tt.err}), "42")

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/classes/5/book", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if code := decodeError(t, resp); code != tt.wantCode {
				t.Fatalf("expected %q, got %q", tt.wantCode, code)
			}
		})
	}
}

func TestBookClassRequiresAuthentication(t *testing.T) {
	service := &stubBookingService{}
	app := newBookingTestApp(NewBookingHandler(service), "")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/classes/5/book", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if code := decodeError(t, resp); code != "not_authenticated" {
		t.Fatalf("expected not_authenticated, got %q", code)
	}
	if service.lastUserID != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestBookClassRejectsBadInput(t *testing.T) {
	app := newBookingTestApp(NewBookingHandler(&stubBookingService{}), "42")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/classes/abc/book", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad class id, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classes/5/book", strings.NewReader(`{"preferred_pass_id": -1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad pass id, got %d", resp.StatusCode)
	}
}

func TestCancelBookingReturnsNoContent(t *testing.T) {
	service := &stubBookingService{}
	app := newBookingTestApp(NewBookingHandler(service), "42")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/17/cancel", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if service.lastBookingID != 17 || service.lastUserID != 42 {
		t.Fatalf("unexpected call: booking=%d user=%d", service.lastBookingID, service.lastUserID)
	}
}

func TestCancelBookingMapsErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: services.ErrBookingNotFound, wantStatus: http.StatusNotFound, wantCode: "booking_not_found"},
		{err: services.ErrTooLateToCancel, wantStatus: http.StatusUnprocessableEntity, wantCode: "too_late_to_cancel"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			app := newBookingTestApp(NewBookingHandler(&stubBookingService{cancelErr: tt.err}), "42")

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/17/cancel", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if code := decodeError(t, resp); code != tt.wantCode {
				t.Fatalf("expected %q, got %q", tt.wantCode, code)
			}
		})
	}
}

func TestListBookings(t *testing.T) {
	service := &stubBookingService{listResult: []models.Booking{{ID: 1, ClassID: 5, Status: models.BookingStatusBooked}}}
	app := newBookingTestApp(NewBookingHandler(service), "42")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Bookings []models.Booking `json:"bookings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Bookings) != 1 || body.Bookings[0].ClassID != 5 {
		t.Fatalf("unexpected bookings: %+v", body.Bookings)
	}
}

func TestListScheduleParsesFromAndCapsLimit(t *testing.T) {
	service := &stubBookingService{scheduleResult: []models.ClassAvailability{}}
	app := newBookingTestApp(NewBookingHandler(service), "42")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/classes?from=2026-03-15T09:00:00Z&limit=5000", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !service.lastFrom.Equal(time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from: %s", service.lastFrom)
	}
	if service.lastLimit != maxScheduleLimit {
		t.Fatalf("expected limit %d, got %d", maxScheduleLimit, service.lastLimit)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/classes?from=tomorrow", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", resp.StatusCode)
	}
}

type stubPassService struct {
	result     []models.PassView
	err        error
	lastUserID int64
}

func (s *stubPassService) ListPasses(_ context.Context, userID int64, _ time.Time) ([]models.PassView, error) {
	s.lastUserID = userID
	return s.result, s.err
}

func TestListPasses(t *testing.T) {
	credits := 2
	service := &stubPassService{result: []models.PassView{{
		Pass:     models.Pass{ID: 3, PassType: "class_pack_5", Kind: models.PassKindFiniteCredit, RemainingCredits: &credits, Active: true},
		Eligible: true,
	}}}
	handler := NewPassHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "42")
		return c.Next()
	})
	app.Get("/api/v1/passes", handler.ListPasses)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/passes", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastUserID != 42 {
		t.Fatalf("expected user id 42, got %d", service.lastUserID)
	}

	var body struct {
		Passes []map[string]any `json:"passes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Passes) != 1 || body.Passes[0]["eligible"] != true || body.Passes[0]["kind"] != "finite_credit" {
		t.Fatalf("unexpected passes: %+v", body.Passes)
	}
}
