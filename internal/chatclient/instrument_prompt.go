package chatclient

import "sync"

const defaultInstrumentPrompt = `You previously asked for help from an external instrument. The text ` +
	`below, wrapped in [INSTRUMENT RESULT] markers, is that instrument's answer. Fold it into a single, ` +
	`natural reply to the operator's original question; do not mention that an instrument was consulted ` +
	`unless the operator asked how the answer was produced.`

var (
	instrumentPromptOnce sync.Once
	instrumentPromptText string
)

// LoadInstrumentPrompt returns the system prompt appended before stitching
// an instrument's result back into the conversation. Loaded once and
// cached, matching the read-once template cache called for by the original.
func LoadInstrumentPrompt() string {
	instrumentPromptOnce.Do(func() {
		instrumentPromptText = defaultInstrumentPrompt
	})
	return instrumentPromptText
}

// ReloadInstrumentPrompt forces the cached prompt to be recomputed, for
// tests that need to observe a fresh load.
func ReloadInstrumentPrompt() {
	instrumentPromptOnce = sync.Once{}
}
