// Package tone provides the fixed whitelist of bot tones and response lengths,
// validation, and prompt-guide construction for the store chat assistant.
package tone

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// ---- Whitelist ----

// AllTones is the hard-coded set of bot tones a store may pick.
var AllTones = map[string]string{
	"friendly":     "- Be warm and friendly. Greet the customer like a helpful shop assistant.\n",
	"professional": "- Keep a neutral, professional stance.\n",
	"casual":       "- Use casual, relaxed language.\n",
	"formal":       "- Use formal diction and a polite register.\n",
	"enthusiastic": "- Be upbeat and enthusiastic about the store's products.\n",
}

// AllLengths is the hard-coded set of response lengths.
var AllLengths = map[string]string{
	"short":  "- Keep replies to one or two sentences.\n",
	"medium": "- Keep replies to a short paragraph.\n",
	"long":   "- Give thorough answers, but avoid rambling.\n",
}

var (
	ErrUnknownTone   = errors.New("unknown tone")
	ErrUnknownLength = errors.New("unknown response length")
)

// Normalize lowercases and trims a tag.
func Normalize(tag string) string {
	return strings.TrimSpace(strings.ToLower(tag))
}

// Validate checks the tone and response length of chat settings against the
// whitelist. Values are normalized in place.
func Validate(s *models.ChatSettings) error {
	s.Tone = Normalize(s.Tone)
	s.ResponseLength = Normalize(s.ResponseLength)
	if _, ok := AllTones[s.Tone]; !ok {
		return fmt.Errorf("%w %q (allowed: %s)", ErrUnknownTone, s.Tone, strings.Join(keys(AllTones), ", "))
	}
	if _, ok := AllLengths[s.ResponseLength]; !ok {
		return fmt.Errorf("%w %q (allowed: %s)", ErrUnknownLength, s.ResponseLength, strings.Join(keys(AllLengths), ", "))
	}
	return nil
}

// BuildToneGuide produces a compact instruction snippet for injection into LLM
// system prompts. Unknown tones and lengths fall back to the defaults.
func BuildToneGuide(s models.ChatSettings) string {
	var b strings.Builder
	b.WriteString("\n<TONE POLICY>\n")
	if s.BotName != "" {
		fmt.Fprintf(&b, "- Your name is %s.\n", s.BotName)
	}

	if rule, ok := AllTones[Normalize(s.Tone)]; ok {
		b.WriteString(rule)
	} else {
		b.WriteString(AllTones["friendly"])
	}
	if rule, ok := AllLengths[Normalize(s.ResponseLength)]; ok {
		b.WriteString(rule)
	} else {
		b.WriteString(AllLengths["medium"])
	}

	// Feature rules.
	if !s.EnableOrderTracking {
		b.WriteString("- Do not offer to look up orders; direct the customer to the store's contact page.\n")
	}
	if !s.EnableProductRecommendations {
		b.WriteString("- Do not recommend products.\n")
	}
	if !s.EnableCartRecovery {
		b.WriteString("- Do not bring up the customer's saved cart.\n")
	}

	b.WriteString("- NEVER mirror hostility, sarcasm, insults, or unsafe language.\n")
	b.WriteString("</TONE POLICY>\n")

	if instr := strings.TrimSpace(s.CustomInstructions); instr != "" {
		b.WriteString("\n<STORE INSTRUCTIONS>\n")
		b.WriteString(instr)
		b.WriteString("\n</STORE INSTRUCTIONS>\n")
	}
	return b.String()
}

// ---- helpers ----

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
