package l1

import (
	"errors"
	"testing"
)

func TestTradeRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     TradeRecord
		wantErr bool
	}{
		{
			name: "valid active record",
			rec: TradeRecord{
				Depositor:          "B62q...",
				Amount:             1000,
				InTransit:          true,
				Claimant:           "zcash-escrow-addr",
				RefundAddress:      "B62q...refund",
				DepositBlockHeight: 10,
				ExpiryBlockHeight:  20,
			},
			wantErr: false,
		},
		{
			name: "valid dormant record",
			rec: TradeRecord{
				Depositor:          "B62q...",
				Amount:             1000,
				DepositBlockHeight: 10,
				ExpiryBlockHeight:  20,
			},
			wantErr: false,
		},
		{
			name: "inTransit without claimant violates I2",
			rec: TradeRecord{
				Amount:             1000,
				InTransit:          true,
				DepositBlockHeight: 10,
				ExpiryBlockHeight:  20,
			},
			wantErr: true,
		},
		{
			name: "claimant without inTransit violates I2",
			rec: TradeRecord{
				Amount:             1000,
				Claimant:           "someone",
				DepositBlockHeight: 10,
				ExpiryBlockHeight:  20,
			},
			wantErr: true,
		},
		{
			name: "expiry before deposit violates I3",
			rec: TradeRecord{
				Amount:             1000,
				DepositBlockHeight: 20,
				ExpiryBlockHeight:  10,
			},
			wantErr: true,
		},
		{
			name: "zero amount violates I4",
			rec: TradeRecord{
				Amount:             0,
				DepositBlockHeight: 10,
				ExpiryBlockHeight:  20,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Validate() error = %v, want wrapping ErrInvalidRecord", err)
			}
		})
	}
}
