/*
scope.go - Reception scope resolution

PURPOSE:
  Maps an expense's reception mode to the apartment subsets each entered
  amount applies to. For "total" reception there is one subset (the whole
  association); for per-block/per-stair reception there is one subset per
  referenced block/stair. Scope totals are never mixed: the distribution
  engine applies its rule independently inside each subset.

ORDERING:
  Apartments inside a subset are ordered by block name, stair name, then
  apartment number; this is the maintenance table's display order. Remainder
  cents do not follow it: they are handed out in stable apartment-id order
  (see distribution.go).
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ScopeSubset is one reception scope's apartments and identification.
type ScopeSubset struct {
	Mode       ReceptionMode
	BlockID    BlockID // set for perBlock
	StairID    StairID // set for perStair
	Apartments []Apartment
}

// ScopeKey identifies the subset within the entry's amount maps.
func (s *ScopeSubset) ScopeKey() string {
	switch s.Mode {
	case ReceptionPerBlock:
		return string(s.BlockID)
	case ReceptionPerStair:
		return string(s.StairID)
	default:
		return "total"
	}
}

// Resolver answers scope questions for one association's structure.
type Resolver struct {
	structure Structure

	stairsByID  map[StairID]Stair
	blocksByID  map[BlockID]Block
	aptsByStair map[StairID][]Apartment
}

// NewResolver indexes the structure. The structure is treated as read-only.
func NewResolver(structure Structure) *Resolver {
	r := &Resolver{
		structure:   structure,
		stairsByID:  make(map[StairID]Stair, len(structure.Stairs)),
		blocksByID:  make(map[BlockID]Block, len(structure.Blocks)),
		aptsByStair: make(map[StairID][]Apartment),
	}
	for _, st := range structure.Stairs {
		r.stairsByID[st.ID] = st
	}
	for _, b := range structure.Blocks {
		r.blocksByID[b.ID] = b
	}
	for _, apt := range structure.Apartments {
		r.aptsByStair[apt.StairID] = append(r.aptsByStair[apt.StairID], apt)
	}
	return r
}

// Structure returns the underlying association structure.
func (r *Resolver) Structure() Structure { return r.structure }

// AllApartments returns every apartment in the association in display order
// (block name, stair name, apartment number).
func (r *Resolver) AllApartments() []Apartment {
	apts := make([]Apartment, len(r.structure.Apartments))
	copy(apts, r.structure.Apartments)
	r.sortDisplay(apts)
	return apts
}

// BlockApartments returns the apartments of one block, in display order.
func (r *Resolver) BlockApartments(id BlockID) ([]Apartment, error) {
	if _, ok := r.blocksByID[id]; !ok {
		return nil, &ScopeError{Mode: ReceptionPerBlock, ScopeID: string(id), Reason: "unknown"}
	}
	var apts []Apartment
	for _, st := range r.structure.Stairs {
		if st.BlockID == id {
			apts = append(apts, r.aptsByStair[st.ID]...)
		}
	}
	if len(apts) == 0 {
		return nil, &ScopeError{Mode: ReceptionPerBlock, ScopeID: string(id), Reason: "empty"}
	}
	r.sortDisplay(apts)
	return apts, nil
}

// StairApartments returns the apartments of one stair, in display order.
func (r *Resolver) StairApartments(id StairID) ([]Apartment, error) {
	if _, ok := r.stairsByID[id]; !ok {
		return nil, &ScopeError{Mode: ReceptionPerStair, ScopeID: string(id), Reason: "unknown"}
	}
	apts := r.aptsByStair[id]
	if len(apts) == 0 {
		return nil, &ScopeError{Mode: ReceptionPerStair, ScopeID: string(id), Reason: "empty"}
	}
	out := make([]Apartment, len(apts))
	copy(out, apts)
	r.sortDisplay(out)
	return out, nil
}

// Subsets resolves an expense entry's amount map into scoped subsets. For
// total reception it returns one subset covering the association.
func (r *Resolver) Subsets(entry *ExpenseEntry, expType *ExpenseType) ([]ScopeSubset, error) {
	switch expType.Reception {
	case ReceptionTotal:
		apts := r.AllApartments()
		if len(apts) == 0 {
			return nil, &ScopeError{Mode: ReceptionTotal, ScopeID: r.structure.AssociationID, Reason: "empty"}
		}
		return []ScopeSubset{{Mode: ReceptionTotal, Apartments: apts}}, nil

	case ReceptionPerBlock:
		ids := make([]BlockID, 0, len(entry.AmountsByBlock))
		for id := range entry.AmountsByBlock {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		subsets := make([]ScopeSubset, 0, len(ids))
		for _, id := range ids {
			apts, err := r.BlockApartments(id)
			if err != nil {
				return nil, err
			}
			subsets = append(subsets, ScopeSubset{Mode: ReceptionPerBlock, BlockID: id, Apartments: apts})
		}
		return subsets, nil

	case ReceptionPerStair:
		ids := make([]StairID, 0, len(entry.AmountsByStair))
		for id := range entry.AmountsByStair {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		subsets := make([]ScopeSubset, 0, len(ids))
		for _, id := range ids {
			apts, err := r.StairApartments(id)
			if err != nil {
				return nil, err
			}
			subsets = append(subsets, ScopeSubset{Mode: ReceptionPerStair, StairID: id, Apartments: apts})
		}
		return subsets, nil
	}
	return nil, &ScopeError{Mode: expType.Reception, ScopeID: "", Reason: "unknown"}
}

// Placement returns the block and stair names for an apartment, for display
// rows.
func (r *Resolver) Placement(apt Apartment) (blockName, stairName string) {
	st, ok := r.stairsByID[apt.StairID]
	if !ok {
		return "", ""
	}
	b := r.blocksByID[st.BlockID]
	return b.Name, st.Name
}

func (r *Resolver) sortDisplay(apts []Apartment) {
	sort.SliceStable(apts, func(i, j int) bool {
		bi, si := r.Placement(apts[i])
		bj, sj := r.Placement(apts[j])
		if bi != bj {
			return bi < bj
		}
		if si != sj {
			return si < sj
		}
		return apts[i].Number < apts[j].Number
	})
}

// =============================================================================
// COTA PARTE - ownership share recomputation
// =============================================================================

// TotalSurface sums the surface of a group of apartments.
func TotalSurface(apts []Apartment) decimal.Decimal {
	total := decimal.Zero
	for i := range apts {
		total = total.Add(apts[i].Surface)
	}
	return total
}

// CotaParte computes the ownership share percentage of one surface relative
// to a scope total, at 4-decimal precision.
func CotaParte(surface, totalSurface decimal.Decimal) decimal.Decimal {
	if totalSurface.IsZero() {
		return decimal.Zero
	}
	return surface.Div(totalSurface).Mul(oneHundred).Round(4)
}

// RecalculateCotaParte rewrites the cotaParte of every apartment in the
// group against the group's total surface.
func RecalculateCotaParte(apts []Apartment) []Apartment {
	total := TotalSurface(apts)
	out := make([]Apartment, len(apts))
	copy(out, apts)
	for i := range out {
		out[i].CotaParte = CotaParte(out[i].Surface, total)
	}
	return out
}
