package domain

// ============================================================
// Product catalog & reward tables
// ============================================================

// Product is a catalog entry that can be purchased as an Investment.
type Product struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	DailyReturn float64 `json:"dailyReturn"`
	Duration    int     `json:"duration"`
	Tier        string  `json:"tier"`
}

// Catalog is the static product list shown on the products page.
var Catalog = []Product{
	{ID: 1, Name: "Minerador Bronze", Price: 30, DailyReturn: 6, Duration: 60, Tier: "bronze"},
	{ID: 2, Name: "Minerador Prata", Price: 50, DailyReturn: 10, Duration: 60, Tier: "silver"},
	{ID: 3, Name: "Minerador Ouro", Price: 100, DailyReturn: 20, Duration: 60, Tier: "gold"},
	{ID: 4, Name: "Minerador Platina", Price: 250, DailyReturn: 50, Duration: 60, Tier: "platinum"},
	{ID: 5, Name: "Minerador Diamante", Price: 500, DailyReturn: 100, Duration: 60, Tier: "diamond"},
	{ID: 6, Name: "Minerador Esmeralda", Price: 1000, DailyReturn: 200, Duration: 60, Tier: "emerald"},
	{ID: 7, Name: "Minerador Elite", Price: 2500, DailyReturn: 500, Duration: 60, Tier: "elite"},
}

// FindProduct looks up a catalog product by id.
func FindProduct(id int) (Product, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// CheckinRewards is indexed by day number - 1.
var CheckinRewards = []float64{1, 2, 3, 4, 5, 7, 10}

// CheckinCycleDays is the length of one check-in cycle.
const CheckinCycleDays = 7

// Prize is one segment of the roulette wheel.
type Prize struct {
	Value  float64 `json:"value"`
	Weight int     `json:"weight"`
}

// PrizeTable lists the wheel face in display order. Zero-weight segments are
// drawn on the wheel but never selected.
var PrizeTable = []Prize{
	{Value: 1, Weight: 35},
	{Value: 5, Weight: 30},
	{Value: 10, Weight: 20},
	{Value: 15, Weight: 10},
	{Value: 20, Weight: 5},
	{Value: 35, Weight: 0},
	{Value: 50, Weight: 0},
	{Value: 100, Weight: 0},
}

// Withdrawal and deposit rules.
const (
	MinWithdrawal     = 35.0
	WithdrawalFeeRate = 0.10
	WithdrawOpenHour  = 9
	WithdrawCloseHour = 17
	MinDeposit        = 30.0
)

// Commission rates shown on the team page per referral level. No operation
// credits them; see Referral.Earnings.
var CommissionRates = map[int]float64{1: 0.20, 2: 0.05, 3: 0.01}
