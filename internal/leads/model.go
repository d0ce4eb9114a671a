package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/clinicops/internal/automation"
)

// StatusNew is assigned to every lead on intake.
const StatusNew = "new"

// Lead is a prospective patient tracked through the sales pipeline.
type Lead struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	Message          string            `json:"message,omitempty"`
	Source           string            `json:"source,omitempty"`
	Channel          string            `json:"channel"`
	Status           string            `json:"status"`
	StatusChangedAt  time.Time         `json:"status_changed_at"`
	Tags             []string          `json:"tags"`
	EstimatedValue   float64           `json:"estimated_value"`
	Attempts         int               `json:"attempts"`
	LastContactAt    *time.Time        `json:"last_contact_at,omitempty"`
	AssignedTo       string            `json:"assigned_to,omitempty"`
	MessagingBlocked bool              `json:"messaging_blocked"`
	CustomFields     map[string]string `json:"custom_fields,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Message        string  `json:"message"`
	Source         string  `json:"source"`
	Channel        string  `json:"channel"`
	Branch         string  `json:"branch"`
	Campaign       string  `json:"campaign"`
	Service        string  `json:"service"`
	EstimatedValue float64 `json:"estimated_value"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}

func newLead(id string, req *CreateLeadRequest, now time.Time) *Lead {
	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = "web"
	}
	l := &Lead{
		ID:              id,
		Name:            strings.TrimSpace(req.Name),
		Email:           req.Email,
		Phone:           req.Phone,
		Message:         req.Message,
		Source:          req.Source,
		Channel:         channel,
		Status:          StatusNew,
		StatusChangedAt: now,
		Tags:            []string{},
		EstimatedValue:  req.EstimatedValue,
		CustomFields:    map[string]string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for k, v := range map[string]string{
		automation.FieldBranch:   req.Branch,
		automation.FieldCampaign: req.Campaign,
		automation.FieldService:  req.Service,
		automation.FieldSource:   req.Source,
	} {
		if v = strings.TrimSpace(v); v != "" {
			l.CustomFields[k] = v
		}
	}
	return l
}

// Clone returns a deep copy.
func (l *Lead) Clone() *Lead {
	cp := *l
	cp.Tags = append([]string(nil), l.Tags...)
	if l.LastContactAt != nil {
		t := *l.LastContactAt
		cp.LastContactAt = &t
	}
	if l.CustomFields != nil {
		cp.CustomFields = make(map[string]string, len(l.CustomFields))
		for k, v := range l.CustomFields {
			cp.CustomFields[k] = v
		}
	}
	return &cp
}

// contact picks the address the lead's channel delivers to.
func (l *Lead) contact() string {
	switch l.Channel {
	case "email", "web":
		if l.Email != "" {
			return l.Email
		}
	}
	if l.Phone != "" {
		return l.Phone
	}
	return l.Email
}

// Subject projects the lead into the fact record the rule engine reads.
func (l *Lead) Subject() *automation.Subject {
	c := l.Clone()
	return &automation.Subject{
		ID:               c.ID,
		Name:             c.Name,
		Kind:             automation.SubjectLead,
		Status:           c.Status,
		StatusChangedAt:  c.StatusChangedAt,
		Channel:          c.Channel,
		Contact:          c.contact(),
		Tags:             c.Tags,
		Notes:            c.Message,
		EstimatedValue:   c.EstimatedValue,
		Attempts:         c.Attempts,
		LastContactAt:    c.LastContactAt,
		AssignedTo:       c.AssignedTo,
		MessagingBlocked: c.MessagingBlocked,
		CustomFields:     c.CustomFields,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// Apply copies the fields rule actions may change back onto the lead.
func (l *Lead) Apply(s *automation.Subject) {
	c := s.Clone()
	l.Status = c.Status
	l.StatusChangedAt = c.StatusChangedAt
	l.Tags = c.Tags
	if l.Tags == nil {
		l.Tags = []string{}
	}
	l.AssignedTo = c.AssignedTo
	l.MessagingBlocked = c.MessagingBlocked
	l.CustomFields = c.CustomFields
	if !c.UpdatedAt.IsZero() {
		l.UpdatedAt = c.UpdatedAt
	}
}
