// SPDX-License-Identifier: Apache-2.0

package handle

import "fmt"

// Handle is an opaque reference to a pool slot.
type Handle uint32

// Invalid is the zero Handle. No pool ever issues it.
const Invalid Handle = 0

const (
	indexBits      = 16
	generationBits = 7

	indexMask       = 1<<indexBits - 1
	generationShift = indexBits
	generationMask  = 1<<generationBits - 1
	validBit        = 1 << (indexBits + generationBits)
	typeShift       = indexBits + generationBits + 1

	// Generations is the number of distinct generations a slot cycles through.
	Generations = 1 << generationBits

	// MaxCapacity is the largest pool capacity. The last index value marks the
	// end of the free list.
	MaxCapacity = indexMask

	endOfList = indexMask
)

func makeHandle(index uint16, generation, typeID uint8) Handle {
	return Handle(uint32(index) |
		uint32(generation&generationMask)<<generationShift |
		validBit |
		uint32(typeID)<<typeShift)
}

// Index returns the slot index.
func (h Handle) Index() int { return int(h & indexMask) }

// Generation returns the slot generation the handle was issued for.
func (h Handle) Generation() uint8 { return uint8(h>>generationShift) & generationMask }

// TypeID returns the type id of the pool that issued the handle.
func (h Handle) TypeID() uint8 { return uint8(h >> typeShift) }

// IsValid reports whether h was issued by some pool. It does not mean the
// handle still resolves.
func (h Handle) IsValid() bool { return h&validBit != 0 }

func (h Handle) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(type=%d index=%d gen=%d)", h.TypeID(), h.Index(), h.Generation())
}
