package engine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Zombieliu/gear/internal/ir"
)

// pageTable tracks which program owns each memory page.
//
// Alloc hands out the lowest run of free pages that fits, so page numbers
// are deterministic for a given sequence of calls.
type pageTable struct {
	limit  uint32
	owners map[uint32]ir.ActorID
}

func newPageTable(limit uint32) *pageTable {
	return &pageTable{limit: limit, owners: make(map[uint32]ir.ActorID)}
}

// alloc reserves n contiguous pages for owner and returns the first.
func (p *pageTable) alloc(owner ir.ActorID, n uint32) (uint32, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: zero pages requested", ErrOutOfMemory)
	}
	if n > p.limit {
		return 0, fmt.Errorf("%w: %d pages requested, limit %d", ErrOutOfMemory, n, p.limit)
	}

	for start := uint32(0); start+n <= p.limit; start++ {
		free := true
		for page := start; page < start+n; page++ {
			if _, taken := p.owners[page]; taken {
				// Resume the scan past the taken page.
				start = page
				free = false
				break
			}
		}
		if free {
			for page := start; page < start+n; page++ {
				p.owners[page] = owner
			}
			return start, nil
		}
	}
	return 0, fmt.Errorf("%w: no run of %d free pages", ErrOutOfMemory, n)
}

// free releases one page owned by owner.
func (p *pageTable) free(owner ir.ActorID, page uint32) error {
	got, ok := p.owners[page]
	if !ok || got != owner {
		return fmt.Errorf("%w: page %d", ErrPageNotOwned, page)
	}
	delete(p.owners, page)
	return nil
}

// snapshot returns the page map ordered by page number.
func (p *pageTable) snapshot() []ir.Allocation {
	out := make([]ir.Allocation, 0, len(p.owners))
	for page, owner := range p.owners {
		out = append(out, ir.Allocation{Page: page, Program: owner})
	}
	slices.SortFunc(out, func(a, b ir.Allocation) int {
		return cmp.Compare(a.Page, b.Page)
	})
	return out
}
