package intake

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract_BasicFields(t *testing.T) {
	t.Parallel()

	body := `Organization: Helping Hands
Email: jane@ngo.org
Purpose: water access
Justification: needed for grant`

	e := Extract(body)

	want := map[string]string{
		"organization":  "Helping Hands",
		"email":         "jane@ngo.org",
		"purpose":       "water access",
		"justification": "needed for grant",
	}
	if diff := cmp.Diff(want, e.fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_DataTypeMapping(t *testing.T) {
	t.Parallel()

	e := Extract("DataTypes: volunteers, campaigns, custom thing")

	want := []string{"volunteer_data", "campaign_data", "custom_thing_data"}
	if diff := cmp.Diff(want, e.dataTypes); diff != "" {
		t.Errorf("data types mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_Officials(t *testing.T) {
	t.Parallel()

	e := Extract("AuthorizedOfficials: Jane Doe, Director, jane@ngo.org; John Roe, john@ngo.org")

	want := []Official{
		{Name: "Jane Doe", Title: "Director", Email: "jane@ngo.org"},
		{Name: "John Roe", Title: "Contact", Email: "john@ngo.org"},
	}
	if diff := cmp.Diff(want, e.officials); diff != "" {
		t.Errorf("officials mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_OfficialsWrappedLine(t *testing.T) {
	t.Parallel()

	// The second official's address wrapped onto the next line
	body := `Organization: Ministry of Social Development
AuthorizedOfficials: John Doe, Senior Official, john.doe@govmail.in; Jane Smith, Coordinator,
jane.smith@govmail.in`

	e := Extract(body)

	want := []Official{
		{Name: "John Doe", Title: "Senior Official", Email: "john.doe@govmail.in"},
		{Name: "Jane Smith", Title: "Coordinator", Email: "jane.smith@govmail.in"},
	}
	if diff := cmp.Diff(want, e.officials); diff != "" {
		t.Errorf("officials mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_OfficialWithoutEmail(t *testing.T) {
	t.Parallel()

	e := Extract("AuthorizedOfficials: Jane Doe")

	want := []Official{{Name: "Jane Doe", Title: "Contact", Email: ""}}
	if diff := cmp.Diff(want, e.officials); diff != "" {
		t.Errorf("officials mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_UsageSubRecordOrdering(t *testing.T) {
	t.Parallel()

	// Duration before the requests field has no sub-record to land in
	e := Extract("Duration: 2 years")
	if e.usage != nil {
		t.Errorf("duration alone created a usage record: %+v", e.usage)
	}

	e = Extract("Estimated Requests Per Month: 500\nDuration: 2 years")
	want := &UsageEstimate{RequestsPerMonth: 500, Duration: "2 years"}
	if diff := cmp.Diff(want, e.usage); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_UsageUnparseableDefaults(t *testing.T) {
	t.Parallel()

	e := Extract("Estimated Requests Per Month: lots")

	want := &UsageEstimate{RequestsPerMonth: 1000, Duration: "1 year"}
	if diff := cmp.Diff(want, e.usage); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_TechnicalSubRecordOrdering(t *testing.T) {
	t.Parallel()

	// Location without the initializing integration-method field is dropped
	e := Extract("Data Processing Location: Berlin")
	if e.technical != nil {
		t.Errorf("location alone created a technical record: %+v", e.technical)
	}

	e = Extract(`API Integration Method: REST API
Data Processing Location: Berlin
Security Measures: TLS everywhere`)

	want := &TechnicalDetails{
		APIIntegrationMethod:   "REST API",
		DataProcessingLocation: "Berlin",
		SecurityMeasures:       "TLS everywhere",
	}
	if diff := cmp.Diff(want, e.technical); diff != "" {
		t.Errorf("technical mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_SkipsMIMEArtifacts(t *testing.T) {
	t.Parallel()

	body := `--000000000000e5a01f
Content-Type: text/plain; charset="UTF-8"
Organization: Helping Hands
--000000000000e5a01f--`

	e := Extract(body)

	if got := e.fields["organization"]; got != "Helping Hands" {
		t.Errorf("organization = %q, want %q", got, "Helping Hands")
	}
}

func TestExtract_DuplicateSuppression(t *testing.T) {
	t.Parallel()

	// Under the exemption threshold a repeated field is re-applied
	e := Extract(`DataTypes: volunteers
Organization: First Org
DataTypes: campaigns`)

	if diff := cmp.Diff([]string{"campaign_data"}, e.dataTypes); diff != "" {
		t.Errorf("expected repeat below threshold to apply (-want +got):\n%s", diff)
	}

	// At the threshold the repeat is suppressed
	e = Extract(`DataTypes: volunteers
Organization: First Org
Purpose: research
DataTypes: campaigns`)

	if diff := cmp.Diff([]string{"volunteer_data"}, e.dataTypes); diff != "" {
		t.Errorf("expected repeat at threshold to be suppressed (-want +got):\n%s", diff)
	}
}

func TestExtract_FirstScalarWins(t *testing.T) {
	t.Parallel()

	e := Extract("Email: first@ngo.org\nEmail: second@ngo.org")

	if got := e.fields["email"]; got != "first@ngo.org" {
		t.Errorf("email = %q, want first occurrence to win", got)
	}
}
