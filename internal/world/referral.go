package world

import "github.com/google/uuid"

// ReferralClaim is one other resident who registered using a referral
// code, pending or already paid out to the referrer once matured.
type ReferralClaim struct {
	ClaimedBy string
	ClaimedAt int64 // world-seconds
	Paid      bool
}

// ReferralCode is a single resident's durable invite link and the claims
// registered against it. Verifying the claimant is a genuine third-party
// signup is an external collaborator's job; this package only tracks
// maturation and payout bookkeeping.
type ReferralCode struct {
	Code       string
	ReferrerID string
	Claims     []*ReferralClaim
}

// ReferralCodeFor returns the referrer's existing code, minting one on
// first request. The code is an opaque uuid rather than anything derived
// from the resident id, so an invite link never leaks the referrer's own
// identifier to whoever it's shared with.
func (s *State) ReferralCodeFor(residentID string) *ReferralCode {
	for _, rc := range s.referrals {
		if rc.ReferrerID == residentID {
			return rc
		}
	}
	rc := &ReferralCode{Code: uuid.NewString(), ReferrerID: residentID}
	s.referrals[rc.Code] = rc
	return rc
}

// RecordReferralClaim registers a new resident against a referral code.
// Returns false if the code doesn't exist or the claimant already
// claimed it.
func (s *State) RecordReferralClaim(code, claimedBy string, worldTime int64) bool {
	rc := s.referrals[code]
	if rc == nil {
		return false
	}
	for _, c := range rc.Claims {
		if c.ClaimedBy == claimedBy {
			return false
		}
	}
	rc.Claims = append(rc.Claims, &ReferralClaim{ClaimedBy: claimedBy, ClaimedAt: worldTime})
	return true
}

// ClaimReferrals pays out every matured, unpaid claim against the
// resident's own referral code and marks them paid. Returns the claims
// just paid; computing the bonus owed is left to the caller so the bonus
// amount can vary by caller policy.
func (s *State) ClaimReferrals(residentID string, worldTime, maturationSeconds int64) []*ReferralClaim {
	rc := s.ReferralCodeFor(residentID)
	var matured []*ReferralClaim
	for _, c := range rc.Claims {
		if !c.Paid && worldTime-c.ClaimedAt >= maturationSeconds {
			c.Paid = true
			matured = append(matured, c)
		}
	}
	return matured
}
