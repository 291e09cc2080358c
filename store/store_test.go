package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func testSponsor(t *testing.T, s *Store, balance int64) *Sponsor {
	t.Helper()
	sponsor, err := s.GetOrCreateSponsorByWallet("0x" + t.Name())
	require.NoError(t, err)
	if balance > 0 {
		require.NoError(t, s.CreditSponsorBalance(sponsor.ID, balance))
	}
	return sponsor
}

func testAction(t *testing.T, s *Store, sponsorID string) *Action {
	t.Helper()
	action, err := s.CreateAction(CreateActionParams{
		SponsorID:          sponsorID,
		ResourceID:         "res-1",
		PluginID:           "email-capture",
		Config:             sponsorgate.PluginConfig{"prompt": "enter email"},
		CoverageType:       sponsorgate.CoverageFull,
		Recurrence:         sponsorgate.RecurrenceOneTimePerUser,
		MaxRedemptionPrice: 2_000_000,
	})
	require.NoError(t, err)
	return action
}

func TestSponsorCreateAndLookup(t *testing.T) {
	s := testStore(t)

	sponsor, err := s.GetOrCreateSponsorByWallet("0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sponsor.Balance)

	again, err := s.GetOrCreateSponsorByWallet("0xabc")
	require.NoError(t, err)
	assert.Equal(t, sponsor.ID, again.ID)

	_, err = s.GetSponsor("missing")
	assert.ErrorIs(t, err, sponsorgate.ErrSponsorNotFound)
}

func TestDebitSponsorBalance(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 1_000)

	require.NoError(t, s.DebitSponsorBalance(sponsor.ID, 400))

	got, err := s.GetSponsor(sponsor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.Balance)

	// Overdraw is rejected without mutating the balance
	err = s.DebitSponsorBalance(sponsor.ID, 601)
	assert.ErrorIs(t, err, sponsorgate.ErrInsufficientBalance)

	got, err = s.GetSponsor(sponsor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.Balance)

	err = s.DebitSponsorBalance("missing", 1)
	assert.ErrorIs(t, err, sponsorgate.ErrSponsorNotFound)
}

func TestDebitSponsorBalanceConcurrent(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 1_000)

	// 20 concurrent debits of 100 against a balance of 1000: exactly 10 may
	// succeed, and the balance must end at zero, never negative
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DebitSponsorBalance(sponsor.ID, 100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	got, err := s.GetSponsor(sponsor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestBalanceConservation(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 10_000_000)

	// Interleave successful debits with debit-then-refund failures; the final
	// balance depends only on the successful amounts
	debits := []int64{1_500_000, 2_000_000, 500_000}
	for _, amount := range debits {
		require.NoError(t, s.DebitSponsorBalance(sponsor.ID, amount))
	}
	for _, amount := range []int64{750_000, 250_000} {
		require.NoError(t, s.DebitSponsorBalance(sponsor.ID, amount))
		require.NoError(t, s.CreditSponsorBalance(sponsor.ID, amount))
	}

	got, err := s.GetSponsor(sponsor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000-1_500_000-2_000_000-500_000), got.Balance)
}

func TestCreateRedemptionDuplicateInstance(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 0)
	action := testAction(t, s, sponsor.ID)

	params := CreateRedemptionParams{
		ActionID:        action.ID,
		UserID:          "user-1",
		ResourceID:      "res-1",
		InstanceID:      "inst-1",
		SponsoredAmount: 100,
	}
	_, err := s.CreateRedemption(params)
	require.NoError(t, err)

	_, err = s.CreateRedemption(params)
	assert.ErrorIs(t, err, sponsorgate.ErrDuplicateInstance)
}

func TestFinalizeRedemption(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 0)
	action := testAction(t, s, sponsor.ID)

	_, err := s.CreateRedemption(CreateRedemptionParams{
		ActionID:        action.ID,
		UserID:          "user-1",
		ResourceID:      "res-1",
		InstanceID:      "inst-1",
		SponsoredAmount: 1_500_000,
	})
	require.NoError(t, err)

	require.NoError(t, s.FinalizeRedemption("inst-1", sponsorgate.StatusCompleted, 1_500_000, "0xhash"))

	got, err := s.GetRedemption("inst-1")
	require.NoError(t, err)
	assert.Equal(t, string(sponsorgate.StatusCompleted), got.Status)
	assert.Equal(t, int64(1_500_000), got.SponsoredAmount)
	assert.Equal(t, "0xhash", got.TransactionHash)
	assert.NotNil(t, got.CompletedAt)

	// Terminal states are immutable
	err = s.FinalizeRedemption("inst-1", sponsorgate.StatusFailed, 0, "")
	assert.ErrorIs(t, err, sponsorgate.ErrRedemptionFinalized)

	err = s.FinalizeRedemption("missing", sponsorgate.StatusFailed, 0, "")
	assert.ErrorIs(t, err, sponsorgate.ErrRedemptionNotFound)

	err = s.FinalizeRedemption("inst-1", sponsorgate.StatusPending, 0, "")
	assert.Error(t, err)
}

func TestFinalizeRedemptionConcurrent(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 0)
	action := testAction(t, s, sponsor.ID)

	_, err := s.CreateRedemption(CreateRedemptionParams{
		ActionID:        action.ID,
		UserID:          "user-1",
		ResourceID:      "res-1",
		InstanceID:      "inst-race",
		SponsoredAmount: 100,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	finalized := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.FinalizeRedemption("inst-race", sponsorgate.StatusCompleted, 100, "0x1"); err == nil {
				mu.Lock()
				finalized++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, finalized)
}

func TestCountCompletedRedemptions(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 0)
	action := testAction(t, s, sponsor.ID)

	count, err := s.CountCompletedRedemptions(action.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = s.CreateRedemption(CreateRedemptionParams{
		ActionID: action.ID, UserID: "user-1", ResourceID: "res-1",
		InstanceID: "inst-a", SponsoredAmount: 100,
	})
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRedemption("inst-a", sponsorgate.StatusCompleted, 100, "0x1"))

	// Pending and failed instances don't count
	_, err = s.CreateRedemption(CreateRedemptionParams{
		ActionID: action.ID, UserID: "user-1", ResourceID: "res-1",
		InstanceID: "inst-b", SponsoredAmount: 100,
	})
	require.NoError(t, err)
	_, err = s.CreateRedemption(CreateRedemptionParams{
		ActionID: action.ID, UserID: "user-1", ResourceID: "res-1",
		InstanceID: "inst-c", SponsoredAmount: 100,
	})
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRedemption("inst-c", sponsorgate.StatusFailed, 0, ""))

	count, err = s.CountCompletedRedemptions(action.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = s.CountCompletedRedemptions(action.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestGetActionForResource(t *testing.T) {
	s := testStore(t)

	_, err := s.GetActionForResource("res-1")
	assert.ErrorIs(t, err, sponsorgate.ErrNoSponsorAvailable)

	sponsor := testSponsor(t, s, 0)
	action := testAction(t, s, sponsor.ID)

	// Active action but zero sponsor balance: still no sponsorship
	_, err = s.GetActionForResource("res-1")
	assert.ErrorIs(t, err, sponsorgate.ErrNoSponsorAvailable)

	require.NoError(t, s.CreditSponsorBalance(sponsor.ID, 1_000))

	got, err := s.GetActionForResource("res-1")
	require.NoError(t, err)
	assert.Equal(t, action.ID, got.ID)

	// Scoped to res-1, so other resources are not covered
	_, err = s.GetActionForResource("res-2")
	assert.ErrorIs(t, err, sponsorgate.ErrNoSponsorAvailable)

	// Deactivated campaigns stop matching
	require.NoError(t, s.DeactivateAction(action.ID))
	_, err = s.GetActionForResource("res-1")
	assert.ErrorIs(t, err, sponsorgate.ErrNoSponsorAvailable)
}

func TestGetActionForResourceWildcard(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 1_000)

	_, err := s.CreateAction(CreateActionParams{
		SponsorID:          sponsor.ID,
		ResourceID:         "", // any resource
		PluginID:           "survey",
		Config:             sponsorgate.PluginConfig{},
		CoverageType:       sponsorgate.CoveragePercent,
		CoveragePercent:    50,
		Recurrence:         sponsorgate.RecurrencePerRequest,
		MaxRedemptionPrice: 1_000_000,
	})
	require.NoError(t, err)

	got, err := s.GetActionForResource("anything")
	require.NoError(t, err)
	assert.Equal(t, "survey", got.PluginID)
}

func TestFundingLifecycle(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 0)

	tx, err := s.CreateFundingTransaction(CreateFundingParams{
		SponsorID:      sponsor.ID,
		Amount:         5_000_000,
		Currency:       "USDC",
		Network:        "base",
		TreasuryWallet: "0xtreasury",
	})
	require.NoError(t, err)
	assert.Equal(t, string(sponsorgate.StatusPending), tx.Status)
	assert.Equal(t, "0xtreasury", tx.TreasuryWallet)
	assert.Equal(t, "USDC", tx.Currency)
	assert.Equal(t, "base", tx.Network)

	done, err := s.CompleteFundingTransaction(tx.ID, "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, string(sponsorgate.StatusCompleted), done.Status)
	assert.Equal(t, "0xdeadbeef", done.TransactionHash)

	got, err := s.GetSponsor(sponsor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), got.Balance)

	// Replayed confirmation does not credit twice
	_, err = s.CompleteFundingTransaction(tx.ID, "0xdeadbeef")
	assert.ErrorIs(t, err, sponsorgate.ErrFundingNotPending)

	got, err = s.GetSponsor(sponsor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), got.Balance)

	_, err = s.CompleteFundingTransaction("missing", "0x1")
	assert.ErrorIs(t, err, sponsorgate.ErrFundingNotFound)

	_, err = s.CreateFundingTransaction(CreateFundingParams{SponsorID: sponsor.ID, TreasuryWallet: "0xtreasury"})
	assert.Error(t, err)
}

func TestListFundingTransactions(t *testing.T) {
	s := testStore(t)
	sponsor := testSponsor(t, s, 0)

	for _, amount := range []int64{1_000, 2_000} {
		_, err := s.CreateFundingTransaction(CreateFundingParams{
			SponsorID:      sponsor.ID,
			Amount:         amount,
			Currency:       "USDC",
			Network:        "base",
			TreasuryWallet: "0xtreasury",
		})
		require.NoError(t, err)
	}

	txs, err := s.ListFundingTransactions(sponsor.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}
