package costs

import "strings"

const perMillion = 1_000_000.0

// EstimateAnthropicUSD returns estimated USD cost for Anthropic models.
// Returns ok=false when no known fallback pricing exists for the model.
func EstimateAnthropicUSD(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))

	var inputPerMillion float64
	var outputPerMillion float64

	switch {
	case strings.Contains(modelName, "haiku"):
		inputPerMillion = 0.80
		outputPerMillion = 4.00
	case strings.Contains(modelName, "sonnet"):
		inputPerMillion = 3.00
		outputPerMillion = 15.00
	case strings.Contains(modelName, "opus"):
		inputPerMillion = 15.00
		outputPerMillion = 75.00
	default:
		return 0, false
	}

	inputCost := (float64(inputTokens) / perMillion) * inputPerMillion
	outputCost := (float64(outputTokens) / perMillion) * outputPerMillion
	return inputCost + outputCost, true
}

// EstimateOpenAIUSD returns estimated USD cost for the OpenAI-hosted models
// selectTargetModel substitutes in for the local aliases (centi-nox,
// milli-nox, gpt-5, ...) once the fallback ladder lands on api.openai.com.
func EstimateOpenAIUSD(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))

	var inputPerMillion float64
	var outputPerMillion float64

	switch {
	case strings.Contains(modelName, "gpt-4o-mini"):
		inputPerMillion = 0.15
		outputPerMillion = 0.60
	case strings.Contains(modelName, "gpt-4o"):
		inputPerMillion = 2.50
		outputPerMillion = 10.00
	case strings.Contains(modelName, "gpt-5"):
		inputPerMillion = 1.25
		outputPerMillion = 10.00
	default:
		return 0, false
	}

	inputCost := (float64(inputTokens) / perMillion) * inputPerMillion
	outputCost := (float64(outputTokens) / perMillion) * outputPerMillion
	return inputCost + outputCost, true
}

// EstimateUSD dispatches to the per-provider pricing table. Ollama and other
// directly-configured local runners have no billing API to report against,
// so their usage is priced at zero rather than left unpriced — the record
// is still appended, it just never contributes to Spend's dollar totals.
func EstimateUSD(providerName, model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	switch strings.ToLower(strings.TrimSpace(providerName)) {
	case "anthropic":
		return EstimateAnthropicUSD(model, inputTokens, outputTokens)
	case "openai":
		return EstimateOpenAIUSD(model, inputTokens, outputTokens)
	case "ollama", "local":
		return 0, true
	default:
		return 0, false
	}
}

// UsageFromMeta extracts input/output token counts from a transport's raw
// response meta, recognising the OpenAI `usage.{prompt,completion}_tokens`
// shape and Ollama's top-level `prompt_eval_count`/`eval_count` fields. ok
// is false when neither shape is present.
func UsageFromMeta(meta map[string]any) (inputTokens, outputTokens int, ok bool) {
	if meta == nil {
		return 0, 0, false
	}
	if usage, isMap := meta["usage"].(map[string]any); isMap {
		in, inOK := intField(usage, "prompt_tokens")
		out, outOK := intField(usage, "completion_tokens")
		if inOK || outOK {
			return in, out, true
		}
	}
	in, inOK := intField(meta, "prompt_eval_count")
	out, outOK := intField(meta, "eval_count")
	if inOK || outOK {
		return in, out, true
	}
	return 0, 0, false
}

func intField(m map[string]any, key string) (int, bool) {
	v, present := m[key]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// EstimateFromMeta extracts usage from a transport response's raw meta and
// prices it against providerName/model in one step — the path sendViaTransport
// uses, since transports report usage inline rather than via a typed
// TokenUsage like instrument.Response does.
func EstimateFromMeta(providerName, model string, meta map[string]any) (inputTokens, outputTokens int, usd float64, ok bool) {
	inputTokens, outputTokens, ok = UsageFromMeta(meta)
	if !ok {
		return 0, 0, 0, false
	}
	usd, _ = EstimateUSD(providerName, model, inputTokens, outputTokens)
	return inputTokens, outputTokens, usd, true
}
