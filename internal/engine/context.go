package engine

import (
	"encoding/json"
	"fmt"
)

// Flow tags for the conversation scratch context.
const (
	FlowNone       = ""
	FlowPromo      = "promo"
	FlowOnboarding = "onboarding"
)

// PromoDraft is the scratch data of one promo-authoring flow. It is cleared
// when a new flow starts.
type PromoDraft struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Gender      string  `json:"gender,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Negotiable  bool    `json:"negotiable,omitempty"`
	Contact     string  `json:"contact,omitempty"`
	MediaRef    string  `json:"media_ref,omitempty"`
	MediaType   string  `json:"media_type,omitempty"`
	Caption     string  `json:"caption,omitempty"`
	PromotionID string  `json:"promotion_id,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	Impressions int     `json:"impressions,omitempty"`
}

// OnboardingDraft is the scratch data of a registration flow, either role.
type OnboardingDraft struct {
	Name string `json:"name,omitempty"`
}

// FlowContext is a tagged union of per-flow scratch structs. Exactly one
// variant is populated for the flow named by the tag.
type FlowContext struct {
	Flow        string           `json:"flow,omitempty"`
	Promo       *PromoDraft      `json:"promo,omitempty"`
	Onboarding  *OnboardingDraft `json:"onboarding,omitempty"`
	ReturnState string           `json:"return_state,omitempty"`
}

// decodeFlowContext tolerates an empty or corrupt context by starting fresh;
// scratch data is never worth failing an event over.
func decodeFlowContext(raw []byte) *FlowContext {
	fc := &FlowContext{}
	if len(raw) == 0 {
		return fc
	}
	if err := json.Unmarshal(raw, fc); err != nil {
		return &FlowContext{}
	}
	return fc
}

func (fc *FlowContext) encode() ([]byte, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode flow context: %w", err)
	}
	return data, nil
}

// reset clears all scratch data. Every flow starts from an empty context.
func (fc *FlowContext) reset() {
	*fc = FlowContext{}
}

// startPromo resets the context and opens a fresh promo draft.
func (fc *FlowContext) startPromo() *PromoDraft {
	fc.reset()
	fc.Flow = FlowPromo
	fc.Promo = &PromoDraft{}
	return fc.Promo
}

// promoDraft returns the active promo draft, recreating it if the stored
// context went missing mid-flow.
func (fc *FlowContext) promoDraft() *PromoDraft {
	if fc.Flow != FlowPromo || fc.Promo == nil {
		return fc.startPromo()
	}
	return fc.Promo
}

// startOnboarding resets the context and opens a registration draft.
func (fc *FlowContext) startOnboarding() *OnboardingDraft {
	fc.reset()
	fc.Flow = FlowOnboarding
	fc.Onboarding = &OnboardingDraft{}
	return fc.Onboarding
}

func (fc *FlowContext) onboardingDraft() *OnboardingDraft {
	if fc.Flow != FlowOnboarding || fc.Onboarding == nil {
		return fc.startOnboarding()
	}
	return fc.Onboarding
}
