package intake

import (
	"regexp"
	"strconv"
	"strings"
)

// duplicateFieldExemption is the number of distinct fields that must be
// captured before a repeated field name is suppressed. Multi-part emails
// often restate the opening header fields before the real content starts,
// so the first few repeats are tolerated. The threshold is a tuning knob,
// not derived from any protocol property.
const duplicateFieldExemption = 3

// recognizedKeys are the substrings that qualify a "key: value" line as a
// field line. Keys are compared after lower-casing and stripping every
// non-letter character.
var recognizedKeys = []string{
	"organization", "contactperson", "email", "phone", "purpose",
	"datatypes", "justification", "estimatedrequests", "duration",
	"apiintegration", "dataprocessing", "securitymeasures",
	"governmentlevel", "department", "authorizedofficials",
}

// ExtractedFields is the intermediate key-to-value capture of one message body.
// The usage and technical sub-records are built lazily: their follow-up
// fields only apply once the initializing field has been seen.
type ExtractedFields struct {
	fields    map[string]string
	dataTypes []string
	usage     *UsageEstimate
	technical *TechnicalDetails
	officials []Official

	captured map[string]bool
}

func newExtractedFields() *ExtractedFields {
	return &ExtractedFields{
		fields:   make(map[string]string),
		captured: make(map[string]bool),
	}
}

// setFirst stores a scalar field, keeping the first occurrence.
func (e *ExtractedFields) setFirst(key, value string) {
	if e.fields[key] == "" {
		e.fields[key] = value
	}
}

var nonLetterPattern = regexp.MustCompile(`[^a-z]`)

func cleanFieldKey(key string) string {
	return nonLetterPattern.ReplaceAllString(strings.ToLower(key), "")
}

func isFieldLine(line string) bool {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return false
	}

	key := cleanFieldKey(line[:idx])
	for _, recognized := range recognizedKeys {
		if strings.Contains(key, recognized) {
			return true
		}
	}
	return false
}

// fieldHandler applies one raw field value to the accumulating capture.
type fieldHandler func(e *ExtractedFields, value string)

func scalarHandler(key string) fieldHandler {
	return func(e *ExtractedFields, value string) {
		e.setFirst(key, value)
	}
}

// fieldHandlers dispatches cleaned field keys. Extending the recognized
// vocabulary means adding an entry here and a substring to recognizedKeys;
// the extraction loop itself never changes.
var fieldHandlers = map[string]fieldHandler{
	"email":         scalarHandler("email"),
	"organization":  scalarHandler("organization"),
	"contactperson": scalarHandler("contactperson"),
	"phone":         scalarHandler("phone"),
	"purpose":       scalarHandler("purpose"),
	"justification": scalarHandler("justification"),
	"department":    scalarHandler("department"),

	"governmentlevel": func(e *ExtractedFields, value string) {
		// Stored verbatim; the store's schema rejects unknown levels
		e.fields["governmentlevel"] = value
	},

	"datatypes": func(e *ExtractedFields, value string) {
		e.dataTypes = mapDataTypes(value)
	},

	// Both spellings show up in the wild
	"estimatedrequestspermonth": setRequestsPerMonth,
	"estimatedrequestsmonth":    setRequestsPerMonth,

	"duration": func(e *ExtractedFields, value string) {
		if e.usage != nil {
			e.usage.Duration = value
		}
	},

	"apiintegrationmethod": func(e *ExtractedFields, value string) {
		e.technical = &TechnicalDetails{APIIntegrationMethod: value}
	},
	"dataprocessinglocation": func(e *ExtractedFields, value string) {
		if e.technical != nil {
			e.technical.DataProcessingLocation = value
		}
	},
	"securitymeasures": func(e *ExtractedFields, value string) {
		if e.technical != nil {
			e.technical.SecurityMeasures = value
		}
	},

	"authorizedofficials": func(e *ExtractedFields, value string) {
		e.officials = parseOfficials(value)
	},
}

var leadingIntPattern = regexp.MustCompile(`^[+-]?\d+`)

func setRequestsPerMonth(e *ExtractedFields, value string) {
	n := 0
	if m := leadingIntPattern.FindString(strings.TrimSpace(value)); m != "" {
		n, _ = strconv.Atoi(m)
	}
	if n <= 0 {
		n = defaultRequestsPerMonth
	}
	e.usage = &UsageEstimate{RequestsPerMonth: n, Duration: defaultUsageDuration}
}

// Extract turns a decoded plain-text body into a field capture using
// line-oriented heuristics. It never fails; an unparseable body simply
// yields an empty capture that the normalizer rejects.
func Extract(body string) *ExtractedFields {
	e := newExtractedFields()

	for _, line := range assembleFieldLines(body) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)
		cleaned := cleanFieldKey(key)
		if cleaned == "" || value == "" {
			continue
		}

		// Repeated MIME parts restate fields; suppress repeats once past
		// the exemption window.
		if e.captured[cleaned] && len(e.captured) >= duplicateFieldExemption {
			continue
		}

		handler, ok := fieldHandlers[cleaned]
		if !ok {
			continue
		}

		handler(e, value)
		e.captured[cleaned] = true
	}

	return e
}

// assembleFieldLines splits the body into candidate field lines, dropping
// blank lines and MIME artifacts and folding wrapped values back onto the
// field line they belong to.
func assembleFieldLines(body string) []string {
	var lines []string

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// MIME boundary markers and stray part headers are not content
		if strings.HasPrefix(line, "--") ||
			strings.HasPrefix(line, "Content-") ||
			strings.Contains(line, "charset=") {
			continue
		}

		if isFieldLine(line) {
			lines = append(lines, line)
		} else if len(lines) > 0 {
			// Continuation of the previous field's value
			lines[len(lines)-1] += " " + line
		}
	}

	return lines
}

// dataTypeVocabulary maps the sender's informal category names onto the
// store's controlled vocabulary.
var dataTypeVocabulary = map[string]string{
	"volunteers":  "volunteer_data",
	"ngos":        "ngo_data",
	"campaigns":   "campaign_data",
	"events":      "event_data",
	"stories":     "story_data",
	"communities": "community_data",
	"analytics":   "analytics_data",
}

var innerSpacePattern = regexp.MustCompile(`\s`)

func mapDataTypes(value string) []string {
	tokens := strings.Split(value, ",")
	mapped := make([]string, 0, len(tokens))

	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if known, ok := dataTypeVocabulary[token]; ok {
			mapped = append(mapped, known)
			continue
		}
		mapped = append(mapped, innerSpacePattern.ReplaceAllString(token, "_")+"_data")
	}

	return mapped
}

var officialSepPattern = regexp.MustCompile(`[,;@]+`)

// parseOfficials splits a semicolon-delimited officials value into
// structured entries. Formats tolerated: "Name, Title, email",
// "Name, email", and "Name" alone. An embedded address is pulled out by
// pattern first so commas inside it cannot split the entry wrong.
func parseOfficials(value string) []Official {
	var officials []Official

	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		email := emailPattern.FindString(entry)

		rest := entry
		if email != "" {
			rest = strings.Replace(rest, email, "", 1)
		}
		rest = officialSepPattern.ReplaceAllString(rest, ",")
		rest = strings.Trim(rest, ", \t")

		var parts []string
		for _, p := range strings.Split(rest, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}

		switch {
		case len(parts) >= 2:
			officials = append(officials, Official{Name: parts[0], Title: parts[1], Email: email})
		case len(parts) == 1:
			officials = append(officials, Official{Name: parts[0], Title: "Contact", Email: email})
		}
	}

	return officials
}
