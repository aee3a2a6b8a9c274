// Package kyc tracks identity verification. A trader must be verified before
// a challenge can be purchased.
package kyc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusRejected   Status = "rejected"
)

const minAge = 18

var (
	ErrNotFound        = errors.New("kyc record not found")
	ErrAlreadyVerified = errors.New("kyc already verified")
	ErrNotStarted      = errors.New("kyc has no pending details; call start first")
	ErrInvalidDetails  = errors.New("invalid kyc details")

	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarPattern = regexp.MustCompile(`^[0-9]{12}$`)
	pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
)

type Details struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	PAN         string `json:"pan_number"`
	Aadhaar     string `json:"aadhaar_number"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
}

// normalize trims fields, checks formats and masks the Aadhaar number so only
// the last four digits are ever stored.
func (d Details) normalize() (Details, error) {
	d.FullName = strings.TrimSpace(d.FullName)
	d.DateOfBirth = strings.TrimSpace(d.DateOfBirth)
	d.PAN = strings.ToUpper(strings.TrimSpace(d.PAN))
	d.Aadhaar = strings.ReplaceAll(strings.TrimSpace(d.Aadhaar), " ", "")
	d.Address = strings.TrimSpace(d.Address)
	d.City = strings.TrimSpace(d.City)
	d.State = strings.TrimSpace(d.State)
	d.Pincode = strings.TrimSpace(d.Pincode)

	switch {
	case d.FullName == "":
		return d, fmt.Errorf("%w: full_name is required", ErrInvalidDetails)
	case d.DateOfBirth == "":
		return d, fmt.Errorf("%w: date_of_birth is required", ErrInvalidDetails)
	case d.PAN == "":
		return d, fmt.Errorf("%w: pan_number is required", ErrInvalidDetails)
	case !aadhaarPattern.MatchString(d.Aadhaar):
		return d, fmt.Errorf("%w: aadhaar_number must be 12 digits", ErrInvalidDetails)
	case d.Pincode != "" && !pincodePattern.MatchString(d.Pincode):
		return d, fmt.Errorf("%w: pincode must be 6 digits", ErrInvalidDetails)
	}
	if _, err := time.Parse("2006-01-02", d.DateOfBirth); err != nil {
		return d, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", ErrInvalidDetails)
	}
	d.Aadhaar = "XXXXXXXX" + d.Aadhaar[8:]
	return d, nil
}

// Record is one trader's verification state.
type Record struct {
	TraderID    string     `json:"trader_id"`
	Status      Status     `json:"status"`
	Details     Details    `json:"details"`
	Reason      string     `json:"reason,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// verify applies the identity rules. It returns a rejection reason, or "" when
// the details pass.
func verify(d Details, now time.Time) string {
	if len(strings.Fields(d.FullName)) < 2 {
		return "full name must include first and last name"
	}
	if !panPattern.MatchString(d.PAN) {
		return "PAN number is malformed"
	}
	dob, err := time.Parse("2006-01-02", d.DateOfBirth)
	if err != nil {
		return "date of birth is malformed"
	}
	if dob.AddDate(minAge, 0, 0).After(now) {
		return "applicant must be at least 18 years old"
	}
	if d.Address == "" {
		return "address is required"
	}
	return ""
}
