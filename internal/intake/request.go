package intake

import (
	"context"
	"time"
)

// Status and priority assigned to every record created by this pipeline.
// Requests submitted through the web form carry other status values; the
// email marker is what the duplicate check keys on.
const (
	StatusEmailSubmitted = "email_submitted"
	DefaultPriority      = "medium"
)

// Official is one person authorized to act on an access request.
type Official struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// UsageEstimate is the expected API usage declared by the requester.
type UsageEstimate struct {
	RequestsPerMonth int    `json:"requestsPerMonth"`
	Duration         string `json:"duration"`
}

// TechnicalDetails describes how the requester intends to integrate.
type TechnicalDetails struct {
	APIIntegrationMethod   string `json:"apiIntegrationMethod"`
	DataProcessingLocation string `json:"dataProcessingLocation"`
	SecurityMeasures       string `json:"securityMeasures"`
}

// AccessRequest is the fully normalized record handed to the store.
type AccessRequest struct {
	Organization        string           `json:"organization"`
	ContactPerson       string           `json:"contactPerson"`
	Email               string           `json:"email"`
	Phone               string           `json:"phone,omitempty"`
	Purpose             string           `json:"purpose"`
	DataTypes           []string         `json:"dataTypes"`
	Justification       string           `json:"justification"`
	EstimatedUsage      UsageEstimate    `json:"estimatedUsage"`
	TechnicalDetails    TechnicalDetails `json:"technicalDetails"`
	GovernmentLevel     string           `json:"governmentLevel"`
	Department          string           `json:"department"`
	AuthorizedOfficials []Official       `json:"authorizedOfficials"`
	Status              string           `json:"status"`
	Priority            string           `json:"priority"`
	RequestedAt         time.Time        `json:"requestedAt"`
}

// RequestStore is the persistence collaborator. FindExisting answers the
// duplicate check for the (email, organization, email-submitted) key;
// Create inserts a new record.
type RequestStore interface {
	FindExisting(ctx context.Context, email, organization string) (bool, error)
	Create(ctx context.Context, req *AccessRequest) error
}

// Notifier is told about every newly created request. Implementations must
// not assume they run on any particular goroutine; failures are logged by
// the caller and never affect the poll outcome.
type Notifier interface {
	RequestReceived(req *AccessRequest) error
}
