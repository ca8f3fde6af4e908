package dataset

import "github.com/kalambet/offerjourney/internal/storage"

// Profile values shown when the source row has no value.
const (
	DefaultCreditScore  = 720
	DefaultIncome       = 85000.0
	DefaultLoanBalance  = 45000.0
	DefaultMonthsOnBook = 18

	// checkingRatio approximates a checking balance from annual income.
	checkingRatio = 0.04
)

// Customer is the profile displayed next to a customer's journeys.
type Customer struct {
	Key          int64   `json:"key"`
	CreditScore  int64   `json:"credit_score"`
	Income       float64 `json:"income"`
	LoanBalance  float64 `json:"loan_balance"`
	MonthsOnBook int64   `json:"months_on_book"`

	// Known is false when the key has no rows in the table.
	Known bool `json:"known"`
	// Defaulted names the attributes that fell back to a default value.
	Defaulted []string `json:"defaulted,omitempty"`
}

// CheckingBalance is a mock balance derived from income.
func (c Customer) CheckingBalance() float64 {
	return c.Income * checkingRatio
}

// DefaultCustomer is the profile of a key with no data at all.
func DefaultCustomer(key int64) Customer {
	return Customer{
		Key:          key,
		CreditScore:  DefaultCreditScore,
		Income:       DefaultIncome,
		LoanBalance:  DefaultLoanBalance,
		MonthsOnBook: DefaultMonthsOnBook,
		Defaulted:    []string{"credit_score", "income", "loan_balance", "months_on_book"},
	}
}

// customerFrom reads the profile columns of a customer's first row.
func customerFrom(r storage.InteractionRecord) Customer {
	c := Customer{Key: r.LoanID, Known: true}

	if r.FICO.Valid {
		c.CreditScore = r.FICO.Int64
	} else {
		c.CreditScore = DefaultCreditScore
		c.Defaulted = append(c.Defaulted, "credit_score")
	}
	if r.Income.Valid {
		c.Income = r.Income.Float64
	} else {
		c.Income = DefaultIncome
		c.Defaulted = append(c.Defaulted, "income")
	}
	if r.ExistingLoanSize.Valid {
		c.LoanBalance = r.ExistingLoanSize.Float64
	} else {
		c.LoanBalance = DefaultLoanBalance
		c.Defaulted = append(c.Defaulted, "loan_balance")
	}
	if r.CurrentLoanMOB.Valid {
		c.MonthsOnBook = r.CurrentLoanMOB.Int64
	} else {
		c.MonthsOnBook = DefaultMonthsOnBook
		c.Defaulted = append(c.Defaulted, "months_on_book")
	}
	return c
}
