package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AttemptStatus
		want     bool
	}{
		{AttemptStatusSent, AttemptStatusDelivered, true},
		{AttemptStatusSent, AttemptStatusConverted, true},
		{AttemptStatusClicked, AttemptStatusClicked, true},
		{AttemptStatusConverted, AttemptStatusSent, false},
		{AttemptStatusClicked, AttemptStatusDelivered, false},
		{AttemptStatusSent, AttemptStatus("opened"), false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStageForPosition(t *testing.T) {
	want := []RecoveryStage{StageInitial, StageFollowUp, StageFinal, StageNone}
	for i, stage := range want {
		if got := StageForPosition(i); got != stage {
			t.Errorf("StageForPosition(%d) = %q, want %q", i, got, stage)
		}
	}
}

func TestAutomationSettingsCreateDefaults(t *testing.T) {
	enabled := true
	req := AutomationSettingsCreateRequest{StoreID: 3}
	req.IsEnabled = &enabled
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	s := req.Settings()
	if !s.IsEnabled || s.InitialDelayHours != 1 || s.FollowUpDelayHours != 24 || s.FinalDelayHours != 48 {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.InitialTemplate != DefaultTemplates.Initial || s.DiscountType != DiscountTypePercentage {
		t.Errorf("expected default templates and percentage discount")
	}
	if !s.DiscountAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected default discount 10, got %s", s.DiscountAmount)
	}
}

func TestAutomationSettingsUpdateValidation(t *testing.T) {
	tooLong := 100
	u := AutomationSettingsUpdate{FinalDelayHours: &tooLong}
	if err := u.Validate(); err == nil {
		t.Error("expected delay above 72 hours to fail validation")
	}

	bad := DiscountType("bogo")
	u = AutomationSettingsUpdate{DiscountType: &bad}
	if err := u.Validate(); !errors.Is(err, ErrInvalidDiscountType) {
		t.Errorf("expected ErrInvalidDiscountType, got %v", err)
	}

	u = AutomationSettingsUpdate{DiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(-5))}
	if err := u.Validate(); !errors.Is(err, ErrInvalidDiscountAmount) {
		t.Errorf("expected ErrInvalidDiscountAmount, got %v", err)
	}

	s := DefaultAutomationSettings(1)
	s.DiscountAmount = decimal.NewFromInt(150)
	if err := s.Check(); !errors.Is(err, ErrPercentageTooLarge) {
		t.Errorf("expected ErrPercentageTooLarge, got %v", err)
	}
}

func TestMessageMetadataEmail(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
	}{
		{"nil metadata", nil, ""},
		{"custom data", map[string]any{"customData": map[string]any{"email": " a@b.com "}}, "a@b.com"},
		{"snake custom data", map[string]any{"custom_data": map[string]any{"email": "c@d.com"}}, "c@d.com"},
		{"top level", map[string]any{"email": "e@f.com"}, "e@f.com"},
		{"wrong type", map[string]any{"customData": "a@b.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{Metadata: tt.metadata}
			if got := m.MetadataEmail(); got != tt.want {
				t.Errorf("MetadataEmail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("unexpected success response: %+v", ok)
	}
	e := Error("boom")
	if e.Status != string(APIStatusError) || e.Message != "boom" || e.Result != nil {
		t.Errorf("unexpected error response: %+v", e)
	}
}
