package model

import "time"

// Plan is a purchasable credit bundle.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Credits  int64    `json:"credits"`
	Features []string `json:"features"`
}

// Plans lists every plan on sale.
var Plans = []Plan{
	{
		ID:      "basic",
		Name:    "Basic",
		Price:   10,
		Credits: 100,
		Features: []string{
			"100 text generations",
			"50 image generations",
			"Standard support",
			"Access to basic models",
		},
	},
	{
		ID:      "pro",
		Name:    "Pro",
		Price:   20,
		Credits: 500,
		Features: []string{
			"500 text generations",
			"200 image generations",
			"Priority support",
			"Access to pro models",
			"Faster response time",
		},
	},
	{
		ID:      "premium",
		Name:    "Premium",
		Price:   30,
		Credits: 1000,
		Features: []string{
			"1000 text generations",
			"500 image generations",
			"24/7 VIP support",
			"Access to premium models",
			"Dedicated account manager",
		},
	},
}

// FindPlan looks up a plan by ID.
func FindPlan(id string) (Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Transaction records a credit purchase.
type Transaction struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	PlanID    string     `json:"planId"`
	Amount    int64      `json:"amount"`
	Credits   int64      `json:"credits"`
	IsPaid    bool       `json:"isPaid"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
