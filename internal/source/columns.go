package source

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Columns maps source column names onto interaction fields. An empty
// optional column is read as NULL.
type Columns struct {
	LoanID           string `json:"loan_id"`
	SessionDate      string `json:"session_date"`
	Offer            string `json:"offer,omitempty"`
	Service          string `json:"service,omitempty"`
	Converted        string `json:"converted,omitempty"`
	FICO             string `json:"fico,omitempty"`
	Income           string `json:"income,omitempty"`
	ExistingLoanSize string `json:"existing_loan_size,omitempty"`
	CurrentLoanMOB   string `json:"current_loan_mob,omitempty"`
}

// DefaultColumns matches the synthetic demo dataset.
func DefaultColumns() Columns {
	return Columns{
		LoanID:           "loan_id",
		SessionDate:      "session_date",
		Offer:            "offer___carousel",
		Service:          "servicing___carousel",
		Converted:        "converts_for_a_topup",
		FICO:             "fico",
		Income:           "income_",
		ExistingLoanSize: "existing_loan_size_",
		CurrentLoanMOB:   "current_loan_mob",
	}
}

func (c Columns) ordered() []string {
	return []string{
		c.LoanID, c.SessionDate, c.Offer, c.Service, c.Converted,
		c.FICO, c.Income, c.ExistingLoanSize, c.CurrentLoanMOB,
	}
}

// Validate requires the key and date columns and rejects anything that is
// not a plain identifier.
func (c Columns) Validate() error {
	if c.LoanID == "" || c.SessionDate == "" {
		return fmt.Errorf("loan_id and session_date columns are required")
	}
	for _, name := range c.ordered() {
		if name != "" && !identRe.MatchString(name) {
			return fmt.Errorf("invalid column name %q", name)
		}
	}
	return nil
}

// selectList renders the projection in ordered() order using quote for
// identifiers.
func (c Columns) selectList(quote func(string) string) string {
	parts := make([]string, 0, 9)
	for _, name := range c.ordered() {
		if name == "" {
			parts = append(parts, "NULL")
			continue
		}
		parts = append(parts, quote(name))
	}
	return strings.Join(parts, ", ")
}

func quoteDouble(name string) string { return `"` + name + `"` }

func quoteBacktick(name string) string { return "`" + name + "`" }
