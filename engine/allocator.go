package engine

import "github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"

// defaultMixer, defaultAUDCTLMask and defaultEnvPtr are the allocator's
// channel-initialization defaults (spec.md S4.4 step 5); status is set
// separately from the command's own priority, not a fixed default.
const (
	defaultMixer      = 0xA0
	defaultAUDCTLMask = 0xFF
	defaultEnvPtr     = 0x31
)

// maxChainLength bounds the SFX chain-table walk (spec.md S4.4 step 7,
// "realizes single-command multi-voice sounds up to 8 channels").
const maxChainLength = 8

// hintGroups is the number of distinct active-list roots a "hint" byte can
// select. PSG hints occupy 4..11 (spec.md S3.3); FM channels are given
// their own non-overlapping range starting at ymHintBase so a chained FM
// voice-load never collides with a PSG physical-voice slot.
const hintGroups = 24

// ymHintBase is the first hint-group index reserved for FM channels
// (spec.md S4.8: 8 channels, one active-list root each).
const ymHintBase = 12

// Allocator owns the hint-rooted, priority-ordered active lists the PSG
// SFX path allocates into (spec.md S4.4), linked through
// Channel.NextActive. There is no separate free list: a free channel is
// one whose Status is 0, found by scanning the channel array.
//
// Grounded on coprocessor_manager.go's worker-slot free-list/active-list
// management (descending-index free search, priority-ordered insertion,
// preemption-by-splice) adapted from worker tickets to sound channels.
type Allocator struct {
	Channels *[ChannelCount]Channel

	activeHead [hintGroups]int

	Errors *ErrorFlags
	Logger *Logger
}

// NewAllocator wires an Allocator to a channel array, with every channel
// starting free and every active list empty.
func NewAllocator(channels *[ChannelCount]Channel) *Allocator {
	a := &Allocator{Channels: channels}
	a.Reset()
	return a
}

// Reset clears every active list and frees every channel, used by
// Engine.Reset for a cold-boot equivalent.
func (a *Allocator) Reset() {
	for i := range a.Channels {
		a.Channels[i].reset()
	}
	for i := range a.activeHead {
		a.activeHead[i] = noLink
	}
}

// AllocateSFX runs the PSG SFX allocation algorithm for a Type 7 command
// (spec.md S4.4), including the chain-table walk that expands a single
// command into up to maxChainLength linked channels.
func (a *Allocator) AllocateSFX(r *rom.ROM, offset byte, cmd uint16) {
	a.allocateChain(r, offset, cmd, ChipPSG)
}

// AllocateFM mirrors AllocateSFX for music/SFX voices that drive the FM
// chip instead of PSG. The SFX metadata format is shared between the two
// paths (spec.md S3.3 doesn't distinguish PSG from FM SFX offsets); the
// only difference is the hardware group and hint-range a channel lands in
// (this implementation's resolution of an otherwise-unspecified detail).
func (a *Allocator) AllocateFM(r *rom.ROM, offset byte, cmd uint16) {
	a.allocateChain(r, offset, cmd, ChipFM)
}

func (a *Allocator) allocateChain(r *rom.ROM, offset byte, cmd uint16, hw ChipType) {
	for i := 0; i < maxChainLength; i++ {
		entry := r.SFX[offset]
		if !a.allocateOne(entry, cmd, hw) {
			return
		}
		if entry.ChainNext == 0 {
			return
		}
		offset = entry.ChainNext
	}
}

// allocateOne performs steps 1-6 of spec.md S4.4 for a single SFX table
// entry: pointer selection, duplicate check, free-slot search, priority
// preemption, initialization, and active-list insertion. It returns false
// if the allocation was a no-op (duplicate found, or no slot available).
func (a *Allocator) allocateOne(entry rom.SFXEntry, cmd uint16, hw ChipType) bool {
	ptr := entry.Primary
	if entry.UseAlternate {
		ptr = entry.Alternate
	}

	if entry.Flags != 0xFF {
		for i := range a.Channels {
			ch := &a.Channels[i]
			if ch.Status != 0 && ch.ActiveCmd == cmd {
				return false
			}
		}
	}

	group := entry.Hint
	if hw == ChipFM {
		group = byte(ymHintBase) + entry.Hint%8
	}

	idx, ok := a.findFreeChannel()
	if !ok {
		idx, ok = a.preempt(group, entry.Priority)
		if !ok {
			return false
		}
	}

	ch := &a.Channels[idx]
	ch.reset()
	ch.VolModAccum = defaultMixer
	ch.CtrlAndMask = defaultAUDCTLMask
	ch.VolEnvPtr = defaultEnvPtr
	ch.Status = EncodedPriority(entry.Priority)
	ch.ActiveCmd = cmd
	ch.SeqPtr = ptr
	ch.HWType = hw
	ch.HintGroup = group

	a.linkActive(idx, group)
	return true
}

// findFreeChannel searches for an unused channel by descending index
// (spec.md S4.4 step 3).
func (a *Allocator) findFreeChannel() (int, bool) {
	for i := len(a.Channels) - 1; i >= 0; i-- {
		if a.Channels[i].Status == 0 {
			return i, true
		}
	}
	return 0, false
}

// preempt walks the priority-ordered active list rooted at hint (spec.md
// S4.4 step 4): the first candidate whose encoded priority the new sound
// meets or exceeds is spliced out and its slot reused.
func (a *Allocator) preempt(hint, priority byte) (int, bool) {
	group := int(hint) % hintGroups
	newEncoded := EncodedPriority(priority)

	prev := noLink
	cur := a.activeHead[group]
	for cur != noLink {
		cand := &a.Channels[cur]
		if newEncoded >= cand.Status {
			a.unlink(group, prev, cur)
			return cur, true
		}
		prev = cur
		cur = cand.NextActive
	}
	return 0, false
}

// linkActive inserts channel idx into the hint-rooted active list in
// descending-priority order (spec.md S4.4 step 6).
func (a *Allocator) linkActive(idx int, hint byte) {
	group := int(hint) % hintGroups
	ch := &a.Channels[idx]

	prev := noLink
	cur := a.activeHead[group]
	for cur != noLink && a.Channels[cur].Status >= ch.Status {
		prev = cur
		cur = a.Channels[cur].NextActive
	}
	ch.NextActive = cur
	if prev == noLink {
		a.activeHead[group] = idx
	} else {
		a.Channels[prev].NextActive = idx
	}
}

// unlink splices channel idx out of hint group's active list, given the
// predecessor index found while walking it (noLink if idx was the head).
func (a *Allocator) unlink(group, prev, idx int) {
	next := a.Channels[idx].NextActive
	if prev == noLink {
		a.activeHead[group] = next
	} else {
		a.Channels[prev].NextActive = next
	}
	a.Channels[idx].NextActive = noLink
}

// Front returns the highest-priority channel currently linked into hint
// group's active list, used by the POKEY writer to find each physical
// voice's primary/secondary logical channel (spec.md S4.7).
func (a *Allocator) Front(hint byte) (*Channel, bool) {
	idx := a.activeHead[int(hint)%hintGroups]
	if idx == noLink {
		return nil, false
	}
	return &a.Channels[idx], true
}

// Release removes a channel from its hint group's active list once the VM
// has run its natural-end path (spec.md S4.10 "unlink from active list,
// re-link into free list"). Since free channels need no list membership
// of their own (findFreeChannel scans by status), this only needs to
// splice the channel out of whichever active list it is on. The group is
// read from the channel's own HintGroup, recorded at allocation time, so
// callers don't need to remember which list a channel came from.
func (a *Allocator) Release(idx int) {
	group := int(a.Channels[idx].HintGroup) % hintGroups
	prev := noLink
	cur := a.activeHead[group]
	for cur != noLink {
		if cur == idx {
			a.unlink(group, prev, cur)
			return
		}
		prev = cur
		cur = a.Channels[cur].NextActive
	}
}
