package automation

import (
	"strings"
	"time"
)

// SubjectKind distinguishes what a subject describes.
type SubjectKind string

const (
	SubjectLead        SubjectKind = "lead"
	SubjectAppointment SubjectKind = "appointment"
)

// Custom field keys read or written by the engine.
const (
	FieldBranch              = "branch"
	FieldCampaign            = "campaign"
	FieldService             = "service"
	FieldSource              = "source"
	FieldAppointmentID       = "appointmentId"
	FieldPendingTask         = "pendingTask"
	FieldSupervisorNotice    = "supervisorNotice"
	FieldIntegration         = "integration"
	FieldBlockReason         = "blockReason"
	FieldLastNotification    = "lastNotification"
	FieldNotificationVariant = "notificationVariant"
)

// TagBlocked is added by block-conversation.
const TagBlocked = "Blocked"

// Subject is the fact record conditions read and actions mutate.
type Subject struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Kind             SubjectKind       `json:"kind"`
	Status           string            `json:"status"`
	StatusChangedAt  time.Time         `json:"status_changed_at"`
	Channel          string            `json:"channel"`
	Contact          string            `json:"contact,omitempty"`
	Tags             []string          `json:"tags"`
	Notes            string            `json:"notes,omitempty"`
	EstimatedValue   float64           `json:"estimated_value"`
	Attempts         int               `json:"attempts"`
	LastContactAt    *time.Time        `json:"last_contact_at,omitempty"`
	AssignedTo       string            `json:"assigned_to,omitempty"`
	MessagingBlocked bool              `json:"messaging_blocked"`
	CustomFields     map[string]string `json:"custom_fields,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Tags = append([]string(nil), s.Tags...)
	if s.LastContactAt != nil {
		t := *s.LastContactAt
		cp.LastContactAt = &t
	}
	if s.CustomFields != nil {
		cp.CustomFields = make(map[string]string, len(s.CustomFields))
		for k, v := range s.CustomFields {
			cp.CustomFields[k] = v
		}
	}
	return &cp
}

// HasTag matches case-insensitively.
func (s *Subject) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag appends tag unless already present and reports whether it changed.
func (s *Subject) AddTag(tag string) bool {
	if s.HasTag(tag) {
		return false
	}
	s.Tags = append(s.Tags, tag)
	return true
}

// RemoveTag drops every case-insensitive match and reports whether it changed.
func (s *Subject) RemoveTag(tag string) bool {
	kept := s.Tags[:0]
	removed := false
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	s.Tags = kept
	return removed
}

func (s *Subject) Field(key string) string {
	if s.CustomFields == nil {
		return ""
	}
	return s.CustomFields[key]
}

func (s *Subject) SetField(key, value string) {
	if s.CustomFields == nil {
		s.CustomFields = make(map[string]string)
	}
	s.CustomFields[key] = value
}

// SetStatus records a status change; the change timestamp moves only when the
// status differs.
func (s *Subject) SetStatus(status string, now time.Time) {
	if s.Status != status {
		s.Status = status
		s.StatusChangedAt = now
	}
}

// HoursInStatus is the real elapsed time in the current status. Subjects with
// no status timestamp fall back to their creation time.
func (s *Subject) HoursInStatus(now time.Time) float64 {
	since := s.StatusChangedAt
	if since.IsZero() {
		since = s.CreatedAt
	}
	if since.IsZero() || now.Before(since) {
		return 0
	}
	return now.Sub(since).Hours()
}

// DaysSinceResponse is whole days since the last contact, or since creation
// when there was none. It never goes negative.
func (s *Subject) DaysSinceResponse(now time.Time) int {
	since := s.CreatedAt
	if s.LastContactAt != nil {
		since = *s.LastContactAt
	}
	if since.IsZero() || now.Before(since) {
		return 0
	}
	return int(now.Sub(since) / (24 * time.Hour))
}

var socialChannels = []string{"facebook", "instagram"}

// IsSocialChannel reports whether channel is subject to the messaging window.
func IsSocialChannel(channel string) bool {
	for _, c := range socialChannels {
		if strings.EqualFold(channel, c) {
			return true
		}
	}
	return false
}
