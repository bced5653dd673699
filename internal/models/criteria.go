package models

import (
	"errors"
	"strings"
	"time"
)

// Validation errors for QualificationCriteria.
var (
	ErrNegativeThreshold = errors.New("criteria thresholds cannot be negative")
	ErrInvertedCTCBand   = errors.New("min_ctc cannot exceed max_ctc")
)

// QualificationCriteria are the eligibility thresholds applied when scoring a candidate.
// CTC values are annual compensation in lakh.
type QualificationCriteria struct {
	MinExperience   float64   `json:"min_experience"`
	MinCTC          float64   `json:"min_ctc"`
	MaxCTC          float64   `json:"max_ctc"`
	MaxNoticeDays   float64   `json:"max_notice_days"`
	MinIncentive    float64   `json:"min_incentive,omitempty"` // 0 disables the incentive check
	AllowedProducts []string  `json:"allowed_products,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultCriteria mirrors the thresholds the screening team started with.
func DefaultCriteria() QualificationCriteria {
	return QualificationCriteria{
		MinExperience:   2,
		MinCTC:          0,
		MaxCTC:          6,
		MaxNoticeDays:   30,
		AllowedProducts: []string{"home loan", "housing loan", "lap", "loan against property", "mortgage"},
	}
}

// Validate checks the criteria for internal consistency.
func (c QualificationCriteria) Validate() error {
	if c.MinExperience < 0 || c.MinCTC < 0 || c.MaxCTC < 0 || c.MaxNoticeDays < 0 || c.MinIncentive < 0 {
		return ErrNegativeThreshold
	}
	if c.MinCTC > c.MaxCTC {
		return ErrInvertedCTCBand
	}
	return nil
}

// AllowsProduct reports whether text mentions one of the allowed products.
// An empty whitelist allows everything.
func (c QualificationCriteria) AllowsProduct(text string) bool {
	if len(c.AllowedProducts) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range c.AllowedProducts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with c.
func (c QualificationCriteria) Clone() QualificationCriteria {
	out := c
	if c.AllowedProducts != nil {
		out.AllowedProducts = append([]string(nil), c.AllowedProducts...)
	}
	return out
}

// CriteriaPatch is a partial update; nil fields are left unchanged.
type CriteriaPatch struct {
	MinExperience   *float64  `json:"min_experience,omitempty"`
	MinCTC          *float64  `json:"min_ctc,omitempty"`
	MaxCTC          *float64  `json:"max_ctc,omitempty"`
	MaxNoticeDays   *float64  `json:"max_notice_days,omitempty"`
	MinIncentive    *float64  `json:"min_incentive,omitempty"`
	AllowedProducts *[]string `json:"allowed_products,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p CriteriaPatch) IsEmpty() bool {
	return p.MinExperience == nil && p.MinCTC == nil && p.MaxCTC == nil &&
		p.MaxNoticeDays == nil && p.MinIncentive == nil && p.AllowedProducts == nil
}

// Apply returns c with the patch applied.
func (p CriteriaPatch) Apply(c QualificationCriteria) QualificationCriteria {
	out := c.Clone()
	if p.MinExperience != nil {
		out.MinExperience = *p.MinExperience
	}
	if p.MinCTC != nil {
		out.MinCTC = *p.MinCTC
	}
	if p.MaxCTC != nil {
		out.MaxCTC = *p.MaxCTC
	}
	if p.MaxNoticeDays != nil {
		out.MaxNoticeDays = *p.MaxNoticeDays
	}
	if p.MinIncentive != nil {
		out.MinIncentive = *p.MinIncentive
	}
	if p.AllowedProducts != nil {
		out.AllowedProducts = append([]string(nil), (*p.AllowedProducts)...)
	}
	return out
}
