package intake

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Defaults applied when the sender omits required usage fields.
const (
	defaultRequestsPerMonth = 1000
	defaultUsageDuration    = "1 year"
)

// Fallback addresses for the synthetic official when nothing better exists.
const (
	fallbackContactName  = "Contact Person"
	fallbackContactEmail = "contact@unknown.com"
)

// Rejection reasons. Each failure class is distinct for diagnostics: a
// never-filled template, a missing sender identity, and a structurally
// incomplete submission are different operational signals.
var (
	// ErrPlaceholder marks an unfilled email template.
	ErrPlaceholder = errors.New("placeholder template values")

	// ErrNoContactEmail marks a message whose sender could not be resolved.
	ErrNoContactEmail = errors.New("no contact email resolved")
)

// MissingFieldsError reports which required fields a submission lacks.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// IsReject reports whether err is a rejection (an informational skip)
// rather than a processing failure.
func IsReject(err error) bool {
	var missing *MissingFieldsError
	return errors.Is(err, ErrPlaceholder) ||
		errors.Is(err, ErrNoContactEmail) ||
		errors.As(err, &missing)
}

// Normalize turns a field capture into a persistable AccessRequest, or a
// rejection explaining why the submission cannot become one. senderEmail is
// the resolver's result and, when present, overrides whatever address the
// body claimed.
func Normalize(e *ExtractedFields, senderEmail string) (*AccessRequest, error) {
	usage := e.usage
	if usage == nil {
		usage = &UsageEstimate{RequestsPerMonth: defaultRequestsPerMonth, Duration: defaultUsageDuration}
	}
	if usage.RequestsPerMonth <= 0 {
		usage.RequestsPerMonth = defaultRequestsPerMonth
	}
	if usage.Duration == "" {
		usage.Duration = defaultUsageDuration
	}

	officials := completeOfficials(e.officials)

	organization := e.fields["organization"]
	contactPerson := e.fields["contactperson"]
	email := e.fields["email"]
	phone := e.fields["phone"]
	purpose := e.fields["purpose"]

	// Gate 1: the body itself must claim an identity before any override
	if missing := missingOf(
		field{"organization", organization != ""},
		field{"email", email != ""},
		field{"purpose", purpose != ""},
	); len(missing) > 0 {
		slog.Info("Rejecting submission with missing fields", "fields", missing)
		return nil, &MissingFieldsError{Fields: missing}
	}

	// The sender address is more trustworthy than anything in the body
	if senderEmail != "" {
		email = senderEmail
	} else {
		slog.Info("Sender extraction failed, keeping body-claimed email", "email", email)
	}

	// Unfilled template: not an error, just nothing to record
	if strings.Contains(organization, "[Enter") || strings.Contains(contactPerson, "[Your name]") {
		return nil, ErrPlaceholder
	}

	// Gate 2: without a resolved contact email the record is unreachable
	if email == "" {
		return nil, ErrNoContactEmail
	}

	if len(officials) == 0 {
		officials = []Official{syntheticOfficial(contactPerson, email, phone)}
	}

	// Gate 3: everything the downstream schema requires
	if missing := missingOf(
		field{"organization", organization != ""},
		field{"contactPerson", contactPerson != ""},
		field{"purpose", purpose != ""},
		field{"dataTypes", len(e.dataTypes) > 0},
		field{"justification", e.fields["justification"] != ""},
	); len(missing) > 0 {
		slog.Info("Rejecting incomplete submission", "fields", missing)
		return nil, &MissingFieldsError{Fields: missing}
	}

	technical := TechnicalDetails{}
	if e.technical != nil {
		technical = *e.technical
	}

	return &AccessRequest{
		Organization:        organization,
		ContactPerson:       contactPerson,
		Email:               email,
		Phone:               phone,
		Purpose:             purpose,
		DataTypes:           e.dataTypes,
		Justification:       e.fields["justification"],
		EstimatedUsage:      *usage,
		TechnicalDetails:    technical,
		GovernmentLevel:     e.fields["governmentlevel"],
		Department:          e.fields["department"],
		AuthorizedOfficials: officials,
		Status:              StatusEmailSubmitted,
		Priority:            DefaultPriority,
		RequestedAt:         time.Now(),
	}, nil
}

// completeOfficials keeps only officials with both a name and an email and
// fills in the defaults the schema requires.
func completeOfficials(officials []Official) []Official {
	var complete []Official
	for _, o := range officials {
		if o.Name == "" || o.Email == "" {
			continue
		}
		if o.Title == "" {
			o.Title = "Contact"
		}
		complete = append(complete, o)
	}
	return complete
}

// syntheticOfficial derives the required single official from the contact
// fields when none were parseable.
func syntheticOfficial(contactPerson, email, phone string) Official {
	o := Official{
		Name:  contactPerson,
		Title: "Contact",
		Email: email,
		Phone: phone,
	}
	if o.Name == "" {
		o.Name = fallbackContactName
	}
	if o.Email == "" {
		o.Email = fallbackContactEmail
	}
	return o
}

type field struct {
	name    string
	present bool
}

func missingOf(required ...field) []string {
	var missing []string
	for _, f := range required {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	return missing
}
