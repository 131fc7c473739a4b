package fitmeter

// Unit estimation heuristics used when the inference provider does not report counts.
const (
	charsPerUnit      = 4
	imageBytesPerUnit = 100
)

// EstimateTextUnits estimates the units of a text of n characters (ceil(n/4)).
func EstimateTextUnits(n int) uint64 {
	return ceilDiv(n, charsPerUnit)
}

// EstimatePlanUnits returns the units charged for a plan generation. Provider
// counts win when positive; otherwise the prompt and response lengths are used.
func EstimatePlanUnits(promptChars, responseChars int, providerPrompt, providerCompletion uint64) uint64 {
	prompt := providerPrompt
	if prompt == 0 {
		prompt = EstimateTextUnits(promptChars)
	}
	completion := providerCompletion
	if completion == 0 {
		completion = EstimateTextUnits(responseChars)
	}
	return prompt + completion
}

// EstimateImageUnits returns the units charged for an image analysis:
// ceil(imageBytes/100) + ceil(resultChars/4).
func EstimateImageUnits(imageBytes, resultChars int) uint64 {
	return ceilDiv(imageBytes, imageBytesPerUnit) + ceilDiv(resultChars, charsPerUnit)
}

func ceilDiv(n, d int) uint64 {
	if n <= 0 {
		return 0
	}
	return uint64((n + d - 1) / d)
}
