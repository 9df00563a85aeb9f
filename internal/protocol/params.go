package protocol

// RecognitionParams are the parameters of a recognition (asr) task.
type RecognitionParams struct {
	// Format is the audio container or codec: pcm, wav, mp3, opus, speex, aac, amr.
	Format string `json:"format"`
	// SampleRate in Hz.
	SampleRate int `json:"sample_rate"`

	VocabularyID               string   `json:"vocabulary_id,omitempty"`
	DisfluencyRemovalEnabled   *bool    `json:"disfluency_removal_enabled,omitempty"`
	LanguageHints              []string `json:"language_hints,omitempty"`
	SemanticPunctuationEnabled *bool    `json:"semantic_punctuation_enabled,omitempty"`
	// MaxSentenceSilence is the VAD silence threshold in milliseconds.
	MaxSentenceSilence        *int  `json:"max_sentence_silence,omitempty"`
	MultiThresholdModeEnabled *bool `json:"multi_threshold_mode_enabled,omitempty"`
	// Heartbeat asks the service to keep the task open during silence.
	Heartbeat *bool `json:"heartbeat,omitempty"`
}

// TextTypePlain is the text type of plain synthesis input.
const TextTypePlain = "PlainText"

// SynthesisParams are the parameters of a synthesis (tts) task.
type SynthesisParams struct {
	TextType   string   `json:"text_type"`
	Voice      string   `json:"voice"`
	Format     string   `json:"format,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Volume     *int     `json:"volume,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Pitch      *float64 `json:"pitch,omitempty"`
	EnableSSML *bool    `json:"enable_ssml,omitempty"`
}
