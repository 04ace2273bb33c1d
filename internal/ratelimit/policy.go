package ratelimit

import "time"

// Policy is the immutable per-scope window configuration. Policies are
// chosen at startup and do not change at runtime.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

// Scope names used as the first half of rate-limit keys.
const (
	ScopeTranscribe   = "transcribe"
	ScopeTTS          = "tts"
	ScopeConvert      = "convert"
	ScopeVoiceModels  = "voice-models"
	ScopeScan         = "scan"
	ScopeInvoice      = "generate-invoice"
	ScopeProposal     = "generate-proposal"
	ScopeMeetingNotes = "generate-meeting-notes"
	ScopeLive         = "live"
	ScopeAdmin        = "admin"
)

// DefaultPolicies returns the per-endpoint limits observed in production.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ScopeTranscribe:   {Window: time.Minute, MaxRequests: 10},
		ScopeTTS:          {Window: time.Minute, MaxRequests: 20},
		ScopeConvert:      {Window: time.Minute, MaxRequests: 10},
		ScopeVoiceModels:  {Window: time.Minute, MaxRequests: 30},
		ScopeScan:         {Window: time.Minute, MaxRequests: 10},
		ScopeInvoice:      {Window: time.Minute, MaxRequests: 5},
		ScopeProposal:     {Window: time.Minute, MaxRequests: 5},
		ScopeMeetingNotes: {Window: time.Minute, MaxRequests: 10},
		ScopeLive:         {Window: time.Minute, MaxRequests: 10},
		ScopeAdmin:        {Window: time.Minute, MaxRequests: 30},
	}
}
