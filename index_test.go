package vcf2bgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestIndex writes entries into a fresh .bgi next to a small stand-in
// data file, since the Metadata row records the data file's size and leading
// bytes.
func buildTestIndex(t *testing.T, entries ...BgenOffsetEntry) string {
	t.Helper()

	dir := t.TempDir()
	bgenPath := filepath.Join(dir, "data.bgen")
	require.NoError(t, os.WriteFile(bgenPath, []byte("bgen-test-bytes"), 0o644))

	indexPath := bgenPath + ".bgi"
	builder, err := NewVariantIndexBuilder(indexPath, bgenPath)
	require.NoError(t, err)

	for _, e := range entries {
		require.NoError(t, builder.Add(e))
	}
	require.Equal(t, int64(len(entries)), builder.NEntries())
	require.NoError(t, builder.Close())

	return indexPath
}

func entry(chrom string, pos uint32, rsid string, start, size int64) BgenOffsetEntry {
	return BgenOffsetEntry{
		Chromosome:        chrom,
		Position:          pos,
		RSID:              rsid,
		NAlleles:          2,
		Allele1:           "A",
		Allele2:           "G",
		FileStartPosition: start,
		SizeInBytes:       size,
	}
}

func TestIndexRangeQuery(t *testing.T) {
	path := buildTestIndex(t,
		entry("01", 100, "rs1", 44, 30),
		entry("01", 200, "rs2", 74, 30),
		entry("02", 150, "rs3", 104, 30),
		entry("01", 300, "rs4", 134, 30),
	)

	ix, err := OpenBGI(path)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.VariantsInRange("01", 100, 250)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rs1", got[0].RSID)
	assert.Equal(t, "rs2", got[1].RSID)
	assert.Equal(t, uint(44), got[0].FileStartPosition)
	assert.Equal(t, uint(30), got[0].SizeInBytes)

	none, err := ix.VariantsInRange("03", 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIndexRetainsDuplicates(t *testing.T) {
	// The same site indexed twice (duplicated input, or a multiallelic split
	// emitting several rows at one position) keeps both rows in write order.
	path := buildTestIndex(t,
		entry("01", 100, "1:100:A:G", 44, 30),
		entry("01", 100, "1:100:A:T", 74, 32),
	)

	ix, err := OpenBGI(path)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.VariantsInRange("01", 100, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1:100:A:G", got[0].RSID)
	assert.Equal(t, "1:100:A:T", got[1].RSID)
	assert.Less(t, got[0].FileStartPosition, got[1].FileStartPosition)
}

func TestIndexLookupRSID(t *testing.T) {
	path := buildTestIndex(t,
		entry("01", 100, "rs1", 44, 30),
		entry("02", 500, "rs2", 74, 30),
	)

	ix, err := OpenBGI(path)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.LookupRSID("rs2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "02", got[0].Chromosome)
	assert.Equal(t, uint32(500), got[0].Position)
}

func TestIndexAllVariantsPreservesWriteOrder(t *testing.T) {
	// Insertion order is the file's write order, even when positions are not
	// sorted.
	path := buildTestIndex(t,
		entry("02", 900, "rs3", 44, 10),
		entry("01", 100, "rs1", 54, 10),
		entry("01", 50, "rs2", 64, 10),
	)

	ix, err := OpenBGI(path)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.AllVariants()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "rs3", got[0].RSID)
	assert.Equal(t, "rs1", got[1].RSID)
	assert.Equal(t, "rs2", got[2].RSID)
}

func TestIndexMetadata(t *testing.T) {
	path := buildTestIndex(t, entry("01", 100, "rs1", 44, 30))

	ix, err := OpenBGI(path)
	require.NoError(t, err)
	defer ix.Close()

	require.NotNil(t, ix.Metadata)
	assert.Equal(t, uint(len("bgen-test-bytes")), ix.Metadata.FileSize)
	assert.Equal(t, []byte("bgen-test-bytes"), ix.Metadata.FirstThousandBytes)
}

func TestIndexBuilderReplacesStaleIndex(t *testing.T) {
	dir := t.TempDir()
	bgenPath := filepath.Join(dir, "data.bgen")
	require.NoError(t, os.WriteFile(bgenPath, []byte("x"), 0o644))
	indexPath := bgenPath + ".bgi"

	for run := 0; run < 2; run++ {
		builder, err := NewVariantIndexBuilder(indexPath, bgenPath)
		require.NoError(t, err)
		require.NoError(t, builder.Add(entry("01", 100, "rs1", 44, 30)))
		require.NoError(t, builder.Close())
	}

	ix, err := OpenBGI(indexPath)
	require.NoError(t, err)
	defer ix.Close()

	// The second build started from scratch rather than appending.
	got, err := ix.AllVariants()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestIndexBuilderAbortDiscardsEntries(t *testing.T) {
	dir := t.TempDir()
	bgenPath := filepath.Join(dir, "data.bgen")
	require.NoError(t, os.WriteFile(bgenPath, []byte("x"), 0o644))
	indexPath := bgenPath + ".bgi"

	builder, err := NewVariantIndexBuilder(indexPath, bgenPath)
	require.NoError(t, err)
	require.NoError(t, builder.Add(entry("01", 100, "rs1", 44, 30)))
	require.NoError(t, builder.Abort())

	ix, err := OpenBGI(indexPath)
	require.NoError(t, err)
	defer ix.Close()

	got, err := ix.AllVariants()
	require.NoError(t, err)
	assert.Empty(t, got)
}
