package vcf2bgen

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBitReadUintLittleEndian(t *testing.T) {
	var target uint64 = 513
	data := make([]byte, 8) // Big enough to hold a uint64

	binary.LittleEndian.PutUint64(data, target)

	br := newBitReader(bytes.NewBuffer(data))

	val, err := br.ReadUintLittleEndian(16)
	if err != nil {
		t.Error(err)
	}

	if target != val {
		t.Errorf("Got %d, expected %d", val, target)
	}
}

func TestBitWriterMatchesLittleEndianBytes(t *testing.T) {
	bw := newBitWriter(8)
	bw.WriteUintLittleEndian(0xBEEF, 16)
	bw.WriteUintLittleEndian(0x0102, 16)

	got := bw.Flush()

	want := make([]byte, 4)
	binary.LittleEndian.PutUint16(want[0:2], 0xBEEF)
	binary.LittleEndian.PutUint16(want[2:4], 0x0102)

	if !bytes.Equal(got, want) {
		t.Errorf("Got % x, expected % x", got, want)
	}
}

func TestBitWriterRoundTrip(t *testing.T) {
	depths := []int{8, 16, 24, 32}
	values := []uint64{0, 1, 3, 200, 255}

	for _, nbits := range depths {
		bw := newBitWriter(len(values) * nbits / 8)
		for _, v := range values {
			bw.WriteUintLittleEndian(v, nbits)
		}

		br := newBitReader(bytes.NewReader(bw.Flush()))
		for i, v := range values {
			got, err := br.ReadUintLittleEndian(nbits)
			if err != nil {
				t.Fatal(err)
			}
			if got != v {
				t.Errorf("depth %d, value %d: got %d, expected %d", nbits, i, got, v)
			}
		}
	}
}

func TestBitWriterUnalignedRoundTrip(t *testing.T) {
	// Depths below 8 pack several values per byte; the stream must still
	// read back in order.
	bw := newBitWriter(4)
	values := []uint64{5, 0, 7, 2, 1}
	for _, v := range values {
		bw.WriteUintLittleEndian(v, 3)
	}

	br := newBitReader(bytes.NewReader(bw.Flush()))
	for i, v := range values {
		got, err := br.ReadUintLittleEndian(3)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("value %d: got %d, expected %d", i, got, v)
		}
	}
}
