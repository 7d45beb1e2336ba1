package plan

import "testing"

func TestForTier(t *testing.T) {
	t.Run("free tier limits", func(t *testing.T) {
		l := ForTier(Free)
		if l.MaxTransferBytes != 5<<30 {
			t.Errorf("expected 5 GiB cap, got %d", l.MaxTransferBytes)
		}
		if l.ExpiryDays != 7 {
			t.Errorf("expected 7 day expiry, got %d", l.ExpiryDays)
		}
		if l.MonthlyTransfers != 10 {
			t.Errorf("expected 10 transfers/month, got %d", l.MonthlyTransfers)
		}
		if l.AllowPassword {
			t.Error("free tier must not allow passwords")
		}
	})

	t.Run("paid tiers are unlimited per month and allow passwords", func(t *testing.T) {
		for _, tier := range []Tier{Pro, Business} {
			l := ForTier(tier)
			if l.MonthlyTransfers != 0 {
				t.Errorf("%s: expected unlimited monthly transfers, got %d", tier, l.MonthlyTransfers)
			}
			if !l.AllowPassword {
				t.Errorf("%s: expected password protection allowed", tier)
			}
		}
	})

	t.Run("limits grow with tier", func(t *testing.T) {
		if ForTier(Free).MaxTransferBytes >= ForTier(Pro).MaxTransferBytes {
			t.Error("PRO cap should exceed FREE cap")
		}
		if ForTier(Pro).MaxTransferBytes >= ForTier(Business).MaxTransferBytes {
			t.Error("BUSINESS cap should exceed PRO cap")
		}
	})

	t.Run("unknown tier falls back to free", func(t *testing.T) {
		if ForTier("ENTERPRISE") != ForTier(Free) {
			t.Error("unknown tier should get FREE limits")
		}
		if ForTier("") != ForTier(Free) {
			t.Error("empty tier should get FREE limits")
		}
	})

	t.Run("tier lookup is case insensitive", func(t *testing.T) {
		if ForTier("business") != ForTier(Business) {
			t.Error("lowercase tier should resolve")
		}
	})
}

func TestValid(t *testing.T) {
	for _, tier := range []Tier{Free, Pro, Business, "pro"} {
		if !Valid(tier) {
			t.Errorf("expected %q to be valid", tier)
		}
	}
	for _, tier := range []Tier{"", "ENTERPRISE", "FREEMIUM"} {
		if Valid(tier) {
			t.Errorf("expected %q to be invalid", tier)
		}
	}
}
