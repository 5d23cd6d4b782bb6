package commission

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name           string
		cost           string
		cfgType        Type
		rate           string
		wantCommission string
		wantNetIncome  string
	}{
		{
			name:           "percentage ten percent",
			cost:           "1000",
			cfgType:        TypePercentage,
			rate:           "10",
			wantCommission: "100.00",
			wantNetIncome:  "900.00",
		},
		{
			name:           "fixed amount",
			cost:           "1000",
			cfgType:        TypeFixed,
			rate:           "150",
			wantCommission: "150.00",
			wantNetIncome:  "850.00",
		},
		{
			name:           "percentage with rounding half up",
			cost:           "333.33",
			cfgType:        TypePercentage,
			rate:           "15",
			wantCommission: "50.00", // 49.9995 rounds up
			wantNetIncome:  "283.33",
		},
		{
			name:           "fixed larger than cost leaves negative net income",
			cost:           "100",
			cfgType:        TypeFixed,
			rate:           "150",
			wantCommission: "150.00",
			wantNetIncome:  "-50.00",
		},
		{
			name:           "zero rate",
			cost:           "4500",
			cfgType:        TypePercentage,
			rate:           "0",
			wantCommission: "0.00",
			wantNetIncome:  "4500.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := decimal.RequireFromString(tt.cost)
			cfg := Config{Type: tt.cfgType, Rate: decimal.RequireFromString(tt.rate)}

			split, err := Compute(cost, cfg)
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}

			if split.Commission.StringFixed(2) != tt.wantCommission {
				t.Errorf("Compute() commission = %s, want %s", split.Commission.StringFixed(2), tt.wantCommission)
			}
			if split.NetIncome.StringFixed(2) != tt.wantNetIncome {
				t.Errorf("Compute() netIncome = %s, want %s", split.NetIncome.StringFixed(2), tt.wantNetIncome)
			}

			// cost must always equal commission + net income
			if sum := split.Commission.Add(split.NetIncome); !sum.Equal(cost) {
				t.Errorf("split inconsistent: %s + %s = %s, want %s",
					split.Commission, split.NetIncome, sum, cost)
			}
		})
	}
}

func TestComputeInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cost    string
		cfgType Type
		rate    string
		wantErr error
	}{
		{"negative rate", "1000", TypePercentage, "-5", ErrNegativeRate},
		{"percentage over 100", "1000", TypePercentage, "101", ErrRateOverLimit},
		{"unknown type", "1000", Type("revenue_share"), "10", ErrInvalidType},
		{"zero cost", "0", TypePercentage, "10", ErrNonPositiveCost},
		{"negative cost", "-10", TypeFixed, "10", ErrNonPositiveCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Type: tt.cfgType, Rate: decimal.RequireFromString(tt.rate)}
			_, err := Compute(decimal.RequireFromString(tt.cost), cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFixedRateOver100IsAllowed(t *testing.T) {
	cfg := Config{Type: TypeFixed, Rate: decimal.RequireFromString("500")}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil (the 100 cap only applies to percentage rates)", err)
	}
}
