/*
distribution.go - Expense splitting across apartments

PURPOSE:
  Computes the per-apartment share map for one expense entry given its
  expense type rule and the resolved reception scopes. The cardinal rule:
  for every rule except individualAmount, the shares of a scope sum to that
  scope's entered amount EXACTLY, to the cent.

REMAINDER POLICY:
  Proportional splits floor every raw share to cent precision, then hand the
  leftover cents out one by one in stable apartment-id order. Each floored
  share loses less than one cent, so a single pass always exhausts the
  remainder.

CONSUMPTION RECONCILIATION:
  Metered consumption rarely matches the supplier's bill. The metered shares
  (unitPrice x units) stay untouched; the drift against the authoritative
  bill amount is distributed proportionally as a separate difference line,
  so that sum(share + difference) equals the bill exactly.

SEE ALSO:
  - scope.go: subset resolution and ordering
  - validate.go: the gate that cross-checks totals before publish
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DistributionResult is the computed outcome for one expense entry.
type DistributionResult struct {
	// Shares is the per-apartment split. For every distribution type except
	// individualAmount the values sum exactly to the entered amount(s).
	Shares map[ApartmentID]decimal.Decimal

	// DifferenceDetails carries the consumption reconciliation drift per
	// apartment (perConsumption only).
	DifferenceDetails map[ApartmentID]decimal.Decimal

	// Discrepancy is sum(entered individual values) - verification total
	// (individualAmount only). Surfaced, never auto-corrected.
	Discrepancy decimal.Decimal
}

// Distribute computes the share map for one entry. The entry itself is not
// mutated; callers write the result back while the month is draft.
func Distribute(entry *ExpenseEntry, expType *ExpenseType, resolver *Resolver) (*DistributionResult, error) {
	subsets, err := resolver.Subsets(entry, expType)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{
		Shares: make(map[ApartmentID]decimal.Decimal),
	}

	for i := range subsets {
		subset := &subsets[i]
		amount := scopeAmount(entry, expType, subset)

		switch expType.Distribution {
		case DistributePerApartment:
			merge(result.Shares, splitProportional(amount, subset.Apartments, weightEqual))

		case DistributePerPerson:
			merge(result.Shares, splitProportional(amount, subset.Apartments, weightPersons))

		case DistributePerOwnershipShare:
			// cotaParte values act as weights normalized by their own sum,
			// so the cent-exact invariant holds even when the stored
			// percentages do not add up to exactly 100.0000.
			merge(result.Shares, splitProportional(amount, subset.Apartments, weightCotaParte))

		case DistributeIndividualAmount:
			entered := decimal.Zero
			for _, apt := range subset.Apartments {
				v := Round2(entry.IndividualAmounts[apt.ID])
				result.Shares[apt.ID] = v
				entered = entered.Add(v)
			}
			result.Discrepancy = result.Discrepancy.Add(entered.Sub(amount))

		case DistributePerConsumption:
			shares, diffs := splitConsumption(entry, amount, subset.Apartments)
			merge(result.Shares, shares)
			if diffs != nil {
				if result.DifferenceDetails == nil {
					result.DifferenceDetails = make(map[ApartmentID]decimal.Decimal)
				}
				merge(result.DifferenceDetails, diffs)
			}

		default:
			return nil, &ScopeError{Mode: expType.Reception, ScopeID: subset.ScopeKey(), Reason: "unknown distribution type"}
		}
	}

	return result, nil
}

// scopeAmount picks the entered amount that applies to one subset.
func scopeAmount(entry *ExpenseEntry, expType *ExpenseType, subset *ScopeSubset) decimal.Decimal {
	switch subset.Mode {
	case ReceptionPerBlock:
		return Round2(entry.AmountsByBlock[subset.BlockID])
	case ReceptionPerStair:
		return Round2(entry.AmountsByStair[subset.StairID])
	default:
		// Only consumption entries carry the authoritative bill separately
		// from the informational amount field; for every other rule a stray
		// billAmount must not displace the entered amount.
		if expType.Distribution == DistributePerConsumption && !entry.BillAmount.IsZero() {
			return Round2(entry.BillAmount)
		}
		return Round2(entry.Amount)
	}
}

// =============================================================================
// PROPORTIONAL SPLITTER - the cent-exact workhorse
// =============================================================================

func weightEqual(Apartment) decimal.Decimal       { return decimal.NewFromInt(1) }
func weightPersons(a Apartment) decimal.Decimal   { return decimal.NewFromInt(int64(a.Persons)) }
func weightCotaParte(a Apartment) decimal.Decimal { return a.CotaParte }

// splitProportional divides amount across apartments proportionally to the
// given weights. Every share is floored to cents and the remainder is handed
// out one cent at a time in stable apartment-id order, so the shares always
// sum to amount exactly. A zero weight total falls back to an equal split.
func splitProportional(amount decimal.Decimal, apts []Apartment, weight func(Apartment) decimal.Decimal) map[ApartmentID]decimal.Decimal {
	shares := make(map[ApartmentID]decimal.Decimal, len(apts))
	if len(apts) == 0 {
		return shares
	}

	total := decimal.Zero
	for _, apt := range apts {
		total = total.Add(weight(apt))
	}
	if total.IsZero() {
		weight = weightEqual
		total = decimal.NewFromInt(int64(len(apts)))
	}

	distributed := decimal.Zero
	for _, apt := range apts {
		share := Floor2(amount.Mul(weight(apt)).Div(total))
		shares[apt.ID] = share
		distributed = distributed.Add(share)
	}

	// Hand out the leftover cents in stable id order.
	leftover := amount.Sub(distributed)
	cents := leftover.Div(Cent).IntPart()
	if cents <= 0 {
		return shares
	}
	ids := sortedIDs(apts)
	for i := int64(0); i < cents; i++ {
		id := ids[int(i)%len(ids)]
		shares[id] = shares[id].Add(Cent)
	}
	return shares
}

// splitConsumption computes metered shares and the bill reconciliation
// difference for one scope.
func splitConsumption(entry *ExpenseEntry, bill decimal.Decimal, apts []Apartment) (shares, diffs map[ApartmentID]decimal.Decimal) {
	shares = make(map[ApartmentID]decimal.Decimal, len(apts))

	metered := decimal.Zero
	for _, apt := range apts {
		units := entry.Consumption[apt.ID]
		share := Round2(entry.UnitPrice.Mul(units))
		shares[apt.ID] = share
		metered = metered.Add(share)
	}

	difference := bill.Sub(metered)
	if difference.IsZero() {
		return shares, nil
	}

	// Distribute the drift proportionally to metered shares; when nothing
	// was metered, spread it equally so the bill is still covered.
	diffs = splitProportional(difference, apts, func(a Apartment) decimal.Decimal {
		return shares[a.ID]
	})
	return shares, diffs
}

func sortedIDs(apts []Apartment) []ApartmentID {
	ids := make([]ApartmentID, len(apts))
	for i, apt := range apts {
		ids[i] = apt.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func merge(dst, src map[ApartmentID]decimal.Decimal) {
	for k, v := range src {
		if existing, ok := dst[k]; ok {
			dst[k] = existing.Add(v)
		} else {
			dst[k] = v
		}
	}
}
