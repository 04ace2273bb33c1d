package speech

import "context"

const fallbackService = "fallback"

// FallbackTranscriber is the degraded transcriber used when no speech
// service is configured. It always succeeds with an explanatory transcript
// so the endpoint stays usable for integration work.
type FallbackTranscriber struct{}

func (FallbackTranscriber) Transcribe(_ context.Context, _ Audio) (*Transcript, error) {
	return &Transcript{
		Text:       "Transcription service is not configured. This is a fallback response.",
		Confidence: 0,
		Service:    fallbackService,
	}, nil
}

// fallbackVoices is the static voice list served when the upstream catalog
// is unavailable.
var fallbackVoices = []VoiceModel{
	{ID: "aura-asteria-en", Name: "Asteria", Language: "en-US", Gender: "female"},
	{ID: "aura-luna-en", Name: "Luna", Language: "en-US", Gender: "female"},
	{ID: "aura-stella-en", Name: "Stella", Language: "en-US", Gender: "female"},
	{ID: "aura-athena-en", Name: "Athena", Language: "en-GB", Gender: "female"},
	{ID: "aura-hera-en", Name: "Hera", Language: "en-US", Gender: "female"},
	{ID: "aura-orion-en", Name: "Orion", Language: "en-US", Gender: "male"},
	{ID: "aura-arcas-en", Name: "Arcas", Language: "en-US", Gender: "male"},
	{ID: "aura-perseus-en", Name: "Perseus", Language: "en-US", Gender: "male"},
	{ID: "aura-angus-en", Name: "Angus", Language: "en-IE", Gender: "male"},
	{ID: "aura-orpheus-en", Name: "Orpheus", Language: "en-US", Gender: "male"},
	{ID: "aura-helios-en", Name: "Helios", Language: "en-GB", Gender: "male"},
	{ID: "aura-zeus-en", Name: "Zeus", Language: "en-US", Gender: "male"},
}

func fallbackVoiceList() *VoiceList {
	models := make([]VoiceModel, len(fallbackVoices))
	copy(models, fallbackVoices)
	return &VoiceList{Models: models, Fallback: true, Service: fallbackService}
}
