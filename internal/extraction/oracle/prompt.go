package oracle

import (
	"fmt"
	"strings"
)

const (
	DefaultSystemPrompt = "You are an expert data extractor. Only output the fields requested, based solely on the given text."
	defaultUnknownValue = "unknown"
	defaultDateFormat   = "dd/mm/YYYY"
)

// Example is a few-shot pair shown to the model before the text.
type Example struct {
	Input  string
	Output string
}

var (
	nameFields    = []string{"first_name", "last_name", "name", "full_name"}
	dateFields    = []string{"date", "birthdate", "birth_date", "start_date", "end_date"}
	addressFields = []string{"address", "location", "city", "state", "country"}
)

// FewShotExamples picks examples relevant to the requested fields.
func FewShotExamples(fields []string) []Example {
	var examples []Example
	if anyOf(fields, nameFields) {
		examples = append(examples, Example{
			Input:  "John Smith was born on February 9th, 1949 in New York City.",
			Output: `{"first_name": "John", "last_name": "Smith", "birthdate": "09/02/1949", "birthplace": "New York City"}`,
		})
	}
	if anyOf(fields, dateFields) {
		examples = append(examples, Example{
			Input:  "The event started on Jan 15th, 2023 and ended on February 28, 2023.",
			Output: `{"start_date": "15/01/2023", "end_date": "28/02/2023"}`,
		})
	}
	if anyOf(fields, addressFields) {
		examples = append(examples, Example{
			Input:  "The company headquarters is located at 123 Main St, Suite 400, San Francisco, CA 94105, USA.",
			Output: `{"address": "123 Main St, Suite 400", "city": "San Francisco", "state": "CA", "zip_code": "94105", "country": "USA"}`,
		})
	}
	return examples
}

// BuildUserPrompt renders the user message for one chunk.
func BuildUserPrompt(req Request, fewShot bool) string {
	unknown := req.UnknownValue
	if unknown == "" {
		unknown = defaultUnknownValue
	}
	dateFormat := req.DateFormat
	if dateFormat == "" {
		dateFormat = defaultDateFormat
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Extract the following fields from the text: %s.\n", strings.Join(req.Fields, ", "))
	fmt.Fprintf(&b, "If a field is not explicitly stated in the text, mark it as '%s'.\n", unknown)
	b.WriteString("Provide the answer in json format.\n")

	example := exampleDate(dateFormat)
	fmt.Fprintf(&b, "\nFor date fields, use the format: %s\n", dateFormat)
	b.WriteString("For example:\n")
	fmt.Fprintf(&b, "- \"February 9th 1949\" → %s\n", example)
	fmt.Fprintf(&b, "- \"Feb 9, 1949\" → %s\n", example)
	fmt.Fprintf(&b, "- \"9th Feb 1949\" → %s\n", example)

	if fewShot {
		if examples := FewShotExamples(req.Fields); len(examples) > 0 {
			b.WriteString("\nExamples:\n")
			for i, ex := range examples {
				fmt.Fprintf(&b, "\nExample %d:\nInput: %s\nOutput: %s\n", i+1, ex.Input, ex.Output)
			}
		}
	}

	b.WriteString("\nDo not add information not found in the text. Only extract what is explicitly stated.\n")
	fmt.Fprintf(&b, "\nText:\n%s\n", req.Text)
	return b.String()
}

// exampleDate renders 9 February 1949 in a dd/mm/YYYY style pattern.
func exampleDate(pattern string) string {
	r := strings.NewReplacer("YYYY", "1949", "yyyy", "1949", "YY", "49", "dd", "09", "DD", "09", "mm", "02", "MM", "02")
	return r.Replace(pattern)
}

func anyOf(fields, candidates []string) bool {
	for _, f := range fields {
		for _, c := range candidates {
			if f == c {
				return true
			}
		}
	}
	return false
}
