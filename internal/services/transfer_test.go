package services

import (
	"errors"
	"testing"

	"bilancio/internal/core"
)

func TestValidateTransfer(t *testing.T) {
	asset := core.Account{ID: 1, Kind: core.AssetAccount, Balance: core.Money{Cents: 50000}}
	credit := core.Account{ID: 2, Kind: core.RevolvingCredit, Balance: core.Money{Cents: 20000}, CreditLimit: core.Money{Cents: 100000}}
	other := core.Account{ID: 3, Kind: core.AssetAccount, Balance: core.Money{Cents: 1000}}

	tests := []struct {
		name    string
		from    core.Account
		to      core.Account
		amount  int64
		wantErr bool
	}{
		{"asset with sufficient balance", asset, credit, 30000, false},
		{"exact balance drain", asset, other, 50000, false},
		{"same account", asset, asset, 100, true},
		{"zero amount", asset, other, 0, true},
		{"negative amount", asset, other, -500, true},
		{"insufficient asset balance", other, asset, 5000, true},
		{"revolving within headroom", credit, asset, 80000, false},
		{"revolving beyond headroom", credit, asset, 80001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransfer(tt.from, tt.to, core.Money{Cents: tt.amount})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransfer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *core.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			}
		})
	}
}
