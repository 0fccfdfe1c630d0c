package rom

import "math"

// Builder constructs a ROM image byte-by-byte. It exists for tests and
// for tooling that needs to synthesize a ROM without an original binary
// (spec.md ships no ROM image; this package only defines the table
// layout a real dump would have to follow).
//
// Grounded on the teacher's own test fixtures (coprocessor_manager_test.go
// hand-assembles instruction streams with small helper functions rather
// than shipping binary fixtures).
type Builder struct {
	data []byte
	next uint16 // next free offset in the free-form data region
}

// NewBuilder returns a Builder seeded with a zeroed, full-size image.
func NewBuilder() *Builder {
	return &Builder{
		data: make([]byte, Size),
		next: SequenceDataBase,
	}
}

// SetCommand registers a host command's handler-type/param/NMI-class triple.
func (b *Builder) SetCommand(cmd byte, handlerType, param, nmiClass byte) *Builder {
	b.data[offCmdHandlerType+int(cmd)] = handlerType
	b.data[offCmdParam+int(cmd)] = param
	b.data[offCmdNMIClass+int(cmd)] = nmiClass
	return b
}

// PutBytes copies a byte sequence (a channel VM sequence, or an envelope
// table) into the free-form data region and returns its ROM pointer.
func (b *Builder) PutBytes(bytes []byte) uint16 {
	ptr := b.next
	copy(b.data[ptr:], bytes)
	b.next += uint16(len(bytes))
	return ptr
}

// SetSFX writes one SFX metadata entry (spec.md S3.3). primary/alternate
// are ROM pointers, typically from PutBytes.
func (b *Builder) SetSFX(offset byte, flags, priority, hint byte, primary, alternate uint16, chainNext byte) *Builder {
	base := offSFXTable + int(offset)*sfxEntrySize
	b.data[base] = flags
	b.data[base+1] = priority
	b.data[base+2] = hint
	b.data[base+3] = byte(primary)
	b.data[base+4] = byte(primary >> 8)
	b.data[base+5] = byte(alternate)
	b.data[base+6] = byte(alternate >> 8)
	b.data[base+7] = chainNext
	return b
}

// SetMusicMeta writes one music/speech metadata entry (spec.md S3.4).
func (b *Builder) SetMusicMeta(cmd byte, flags, tempoOverride, seqIndex byte) *Builder {
	base := offMusicMeta + int(cmd)*musicMetaSize
	b.data[base] = flags
	b.data[base+1] = tempoOverride
	b.data[base+2] = seqIndex
	return b
}

// SetSeqEntry writes one (pointer, length) sequence-table entry.
func (b *Builder) SetSeqEntry(index byte, pointer, length uint16) *Builder {
	base := offSeqTable + int(index)*seqEntrySize
	b.data[base] = byte(pointer)
	b.data[base+1] = byte(pointer >> 8)
	b.data[base+2] = byte(length)
	b.data[base+3] = byte(length >> 8)
	return b
}

// SetDuration writes one entry of the 16-slot duration table.
func (b *Builder) SetDuration(index byte, frames uint16) *Builder {
	base := offDurationTable + int(index)*2
	b.data[base] = byte(frames)
	b.data[base+1] = byte(frames >> 8)
	return b
}

// SetFMFreq writes one entry of the 128-slot FM chromatic frequency table.
func (b *Builder) SetFMFreq(note byte, value uint16) *Builder {
	base := offFMFreqTable + int(note)*2
	b.data[base] = byte(value)
	b.data[base+1] = byte(value >> 8)
	return b
}

// SetVolShape writes one byte of a distortion-shape table.
func (b *Builder) SetVolShape(shape byte, index byte, value byte) *Builder {
	b.data[offVolShapeTable+int(shape)*256+int(index)] = value
	return b
}

// SetFreqShape writes one byte of the frequency-shape multiplier table.
func (b *Builder) SetFreqShape(index byte, value byte) *Builder {
	b.data[offFreqShapeTable+int(index)] = value
	return b
}

// Build finalizes and loads the image, running the same validation a real
// ROM dump would go through.
func (b *Builder) Build() (*ROM, error) {
	return Load(b.data)
}

// StandardDurations seeds a conventional whole/half/quarter/... duration
// table (spec.md S3.5) at 120 ticks/sec nominal.
func (b *Builder) StandardDurations() *Builder {
	base := []uint16{192, 96, 48, 24, 12, 6, 3, 144, 72, 36, 18, 64, 32, 16, 8, 4}
	for i, v := range base {
		b.SetDuration(byte(i), v)
	}
	return b
}

// StandardFMFreqTable seeds a chromatic 2^(1/12) FM frequency table where
// entry 70 is A4 (440 Hz), per spec.md S8.3. Entry 0 is rest (0).
func (b *Builder) StandardFMFreqTable() *Builder {
	const a4 = 440.0
	const a4Index = 70
	for note := 1; note < FMFreqTableSize; note++ {
		semitones := float64(note - a4Index)
		freq := a4 * math.Pow(2, semitones/12.0)
		// Scaled Hz in 16ths of a Hz, clamped to uint16.
		v := freq * 16.0
		if v > 65535 {
			v = 65535
		}
		b.SetFMFreq(byte(note), uint16(v))
	}
	return b
}
