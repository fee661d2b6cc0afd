package addrfinder

import "fmt"

// maxExegesisIterations bounds the fixed-point loop before it gives up
// with FinderError{Kind: KindNotConverged}. A well-behaved block touches a
// handful of distinct pages at most; anything requiring more retries is
// either pathological or the finder is mis-tracking faults.
const maxExegesisIterations = 64

// ExegesisFinder discovers the complete set of pages a block touches by
// repeatedly re-running it with every previously-discovered page mapped,
// until a run completes without faulting. Each iteration delegates the
// actual execution to an inner FastFinder-style run so the two finders
// share the same child protocol; unlike FastFinder's single-shot Find,
// it keeps retrying instead of returning after the first fault.
type ExegesisFinder struct {
	// SelfPath overrides the executable re-exec'd to host the traced
	// child, as in FastFinder.
	SelfPath string
}

// Find implements Finder.
func (e *ExegesisFinder) Find(block []byte) (AccessedAddrs, error) {
	inner := &FastFinder{SelfPath: e.SelfPath}
	addrs := AccessedAddrs{BlockSize: PageSize}

	for i := 0; i < maxExegesisIterations; i++ {
		before := len(addrs.AccessedBlocks)
		if err := inner.run(block, &addrs); err != nil {
			return AccessedAddrs{}, err
		}
		if len(addrs.AccessedBlocks) == before {
			// This iteration mapped every page the block asked for and it
			// ran to completion without a new fault: fixed point reached.
			addrs.InitialRegs = nil
			return addrs, nil
		}
	}
	return AccessedAddrs{}, &FinderError{
		Kind: KindNotConverged,
		Err:  fmt.Errorf("did not converge after %d iterations, %d pages mapped", maxExegesisIterations, len(addrs.AccessedBlocks)),
	}
}
