package inference

import (
	"bytes"
	"encoding/json"
	"strconv"
	"unicode/utf16"
)

// resultDocument is the analysis result as clients have always received it:
// amounts as the numeric strings read from the answer, junk as 0 or 1, and
// the model's raw text.
type resultDocument struct {
	FoodName      string `json:"foodName"`
	Calories      string `json:"calories"`
	Protein       string `json:"protein"`
	Fat           string `json:"fat"`
	Carbohydrates string `json:"carbohydrates"`
	Sugars        string `json:"sugars"`
	IsJunkFood    int    `json:"isJunkFood"`
	RawResponse   string `json:"rawResponse"`
}

// ResultLength is the length, in UTF-16 code units, of the compact JSON result
// document for a. Image analysis is metered on it.
func (a *Analysis) ResultLength() int {
	doc := resultDocument{
		FoodName:      a.FoodName,
		Calories:      amount(a.Calories),
		Protein:       amount(a.Protein),
		Fat:           amount(a.Fat),
		Carbohydrates: amount(a.Carbohydrates),
		Sugars:        amount(a.Sugars),
		RawResponse:   a.RawResponse,
	}
	if a.Junk {
		doc.IsJunkFood = 1
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return 0
	}
	return utf16Len(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func utf16Len(b []byte) int {
	n := 0
	for _, r := range string(b) {
		n += utf16.RuneLen(r)
	}
	return n
}
