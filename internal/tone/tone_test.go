package tone

import (
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

func TestValidate_NormalizesAndAccepts(t *testing.T) {
	s := models.ChatSettings{Tone: "  Friendly ", ResponseLength: "SHORT"}
	if err := Validate(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Tone != "friendly" || s.ResponseLength != "short" {
		t.Errorf("expected normalized values, got %q/%q", s.Tone, s.ResponseLength)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		tone   string
		length string
		want   error
	}{
		{"unknown tone", "sarcastic", "short", ErrUnknownTone},
		{"unknown length", "formal", "epic", ErrUnknownLength},
		{"empty tone", "", "short", ErrUnknownTone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.ChatSettings{Tone: tt.tone, ResponseLength: tt.length}
			err := Validate(&s)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildToneGuide_Defaults(t *testing.T) {
	guide := BuildToneGuide(models.DefaultChatSettings(1))
	if !strings.Contains(guide, "<TONE POLICY>") || !strings.Contains(guide, "</TONE POLICY>") {
		t.Fatalf("expected policy block, got %q", guide)
	}
	if !strings.Contains(guide, AllTones["friendly"]) {
		t.Errorf("expected friendly rule")
	}
	if !strings.Contains(guide, AllLengths["medium"]) {
		t.Errorf("expected medium length rule")
	}
	if strings.Contains(guide, "Do not recommend products") {
		t.Errorf("unexpected feature restriction in default guide")
	}
	if strings.Contains(guide, "<STORE INSTRUCTIONS>") {
		t.Errorf("unexpected instructions block")
	}
}

func TestBuildToneGuide_FeatureFlagsAndInstructions(t *testing.T) {
	s := models.DefaultChatSettings(1)
	s.Tone = "formal"
	s.ResponseLength = "long"
	s.EnableProductRecommendations = false
	s.EnableOrderTracking = false
	s.CustomInstructions = "Always mention free shipping over $50."

	guide := BuildToneGuide(s)
	for _, want := range []string{
		AllTones["formal"],
		AllLengths["long"],
		"Do not recommend products",
		"Do not offer to look up orders",
		"free shipping over $50",
		"Your name is Shopping Assistant",
	} {
		if !strings.Contains(guide, want) {
			t.Errorf("guide missing %q:\n%s", want, guide)
		}
	}
}

func TestBuildToneGuide_UnknownFallsBack(t *testing.T) {
	guide := BuildToneGuide(models.ChatSettings{Tone: "weird", ResponseLength: "odd"})
	if !strings.Contains(guide, AllTones["friendly"]) || !strings.Contains(guide, AllLengths["medium"]) {
		t.Errorf("expected fallback rules, got %q", guide)
	}
}
