package inference

import (
	"regexp"
	"strconv"
	"strings"
)

const answerFormat = "1) [Name of %s]\n2) [Number] calories\n3) [Number] g protein\n4) [Number] g fat\n" +
	"5) [Number] g carbohydrates\n6) [Number] g sugar\n7) [Yes/No] for whether this is considered junk food\n\n" +
	"Do not include any other text, explanations, or formatting."

// Names used when the answer does not name what was scanned
const (
	UnknownFood    = "Unknown food"
	UnknownProduct = "Unknown product"
)

// Prompt returns the instruction sent along with an image for mode
func Prompt(mode ScanMode) string {
	if mode == ScanModeBarcode {
		return "This is an image of a barcode or packaged food product. Extract the barcode number if visible " +
			"or read the nutrition facts from the package. Respond ONLY with the following numbered format:\n\n" +
			strings.Replace(answerFormat, "%s", "product", 1)
	}
	return "This is an image of food. Analyze this image and respond ONLY with the following numbered format:\n\n" +
		strings.Replace(answerFormat, "%s", "food", 1)
}

var (
	nameLine   = regexp.MustCompile(`1\)[ \t]*([^\n]+)`)
	numberLine = [...]*regexp.Regexp{
		regexp.MustCompile(`2\)[ \t]*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`3\)[ \t]*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`4\)[ \t]*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`5\)[ \t]*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`6\)[ \t]*(\d+(?:\.\d+)?)`),
	}
	junkLine = regexp.MustCompile(`(?i)7\)[ \t]*(\w+)`)
)

// ParseAnalysis reads the numbered answer to a mode scan. Missing or unreadable
// lines keep their defaults: UnknownFood (UnknownProduct for barcodes), zero
// amounts and not junk.
func ParseAnalysis(text string, mode ScanMode) *Analysis {
	a := &Analysis{FoodName: UnknownFood, RawResponse: text}
	if mode == ScanModeBarcode {
		a.FoodName = UnknownProduct
	}

	if m := nameLine.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			a.FoodName = name
		}
	}

	targets := [...]*float64{&a.Calories, &a.Protein, &a.Fat, &a.Carbohydrates, &a.Sugars}
	for i, re := range numberLine {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			*targets[i] = v
		}
	}

	if m := junkLine.FindStringSubmatch(text); m != nil {
		a.Junk = strings.Contains(strings.ToLower(m[1]), "yes")
	}
	return a
}
