package vcf2bgen

import (
	"os"
	"time"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"
)

// VariantIndex conforms to the data found in the rows of the SQLite table
// "Variant" from BGEN Index (.bgi) files, and can be easily parsed with sqlx.
type VariantIndex struct {
	Chromosome        string
	Position          uint32
	RSID              string `db:"rsid"`
	NAlleles          uint16 `db:"number_of_alleles"`
	Allele1           Allele
	Allele2           Allele
	FileStartPosition uint `db:"file_start_position"`
	SizeInBytes       uint `db:"size_in_bytes"`
}

// BGIMetadata conforms to the data found in the rows of the SQLite table
// "Metadata" from more recent versions of BGEN.
type BGIMetadata struct {
	Filename           string
	FileSize           uint   `db:"file_size"`
	LastWriteTime      Time   `db:"last_write_time"`
	FirstThousandBytes []byte `db:"first_1000_bytes"`
	IndexCreationTime  Time   `db:"index_creation_time"`
}

// BGIIndex is a readable handle on a .bgi index file.
type BGIIndex struct {
	DB       *sqlx.DB
	Metadata *BGIMetadata
}

func (b *BGIIndex) Close() error {
	return b.DB.Close()
}

// OpenBGI opens an existing .bgi index for queries.
func OpenBGI(path string) (*BGIIndex, error) {
	db, err := connectBGI(path)
	if err != nil {
		return nil, err
	}

	bgi := &BGIIndex{
		DB:       db,
		Metadata: &BGIMetadata{},
	}

	// Not all index files have metadata; ignore any error
	_ = bgi.DB.Get(bgi.Metadata, "SELECT * FROM Metadata LIMIT 1")

	return bgi, nil
}

// VariantsInRange returns all index entries on chromosome chrom whose
// position lies in [start, end], in write order. Sites indexed more than
// once (duplicated input or multiallelic splits) all appear.
func (b *BGIIndex) VariantsInRange(chrom string, start, end uint32) ([]VariantIndex, error) {
	var out []VariantIndex
	err := b.DB.Select(&out,
		"SELECT * FROM Variant WHERE chromosome = ? AND position BETWEEN ? AND ? ORDER BY rowid ASC",
		chrom, start, end)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return out, nil
}

// LookupRSID returns all index entries carrying the given identifier, in
// write order.
func (b *BGIIndex) LookupRSID(rsid string) ([]VariantIndex, error) {
	var out []VariantIndex
	if err := b.DB.Select(&out, "SELECT * FROM Variant WHERE rsid = ? ORDER BY rowid ASC", rsid); err != nil {
		return nil, pfx.Err(err)
	}

	return out, nil
}

// AllVariants returns every index entry in write order.
func (b *BGIIndex) AllVariants() ([]VariantIndex, error) {
	var out []VariantIndex
	if err := b.DB.Select(&out, "SELECT * FROM Variant ORDER BY rowid ASC"); err != nil {
		return nil, pfx.Err(err)
	}

	return out, nil
}

const createIndexTablesSQL = `
CREATE TABLE Variant (
	chromosome TEXT NOT NULL,
	position INTEGER NOT NULL,
	rsid TEXT NOT NULL,
	number_of_alleles INTEGER NOT NULL,
	allele1 TEXT NOT NULL,
	allele2 TEXT NOT NULL,
	file_start_position INTEGER NOT NULL,
	size_in_bytes INTEGER NOT NULL
);
CREATE INDEX VariantPosition ON Variant (chromosome, position);
CREATE INDEX VariantRSID ON Variant (rsid);
CREATE TABLE Metadata (
	filename TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	last_write_time INTEGER NOT NULL,
	first_1000_bytes BLOB NOT NULL,
	index_creation_time INTEGER NOT NULL
);
`

const insertVariantSQL = `
INSERT INTO Variant (chromosome, position, rsid, number_of_alleles, allele1, allele2, file_start_position, size_in_bytes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// VariantIndexBuilder persists BgenOffsetEntry values into a fresh .bgi
// SQLite store as variants are written. Entries are appended in arrival
// order and never deduplicated; rowid therefore reproduces write order.
// Inserts are buffered in one transaction and committed by Close, which also
// records the Metadata row describing the data file.
type VariantIndexBuilder struct {
	db       *sqlx.DB
	tx       *sqlx.Tx
	insert   *sqlx.Stmt
	bgenPath string
	nEntries int64
}

// NewVariantIndexBuilder creates (or truncates) the index at indexPath.
// bgenPath names the data file the index describes and is recorded in the
// Metadata table.
func NewVariantIndexBuilder(indexPath, bgenPath string) (*VariantIndexBuilder, error) {
	// A stale index must not shadow the new one.
	if err := os.Remove(indexPath); err != nil && !os.IsNotExist(err) {
		return nil, pfx.Err(err)
	}

	db, err := connectBGI(indexPath)
	if err != nil {
		return nil, pfx.Err(err)
	}

	if _, err := db.Exec(createIndexTablesSQL); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	tx, err := db.Beginx()
	if err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	insert, err := tx.Preparex(insertVariantSQL)
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, pfx.Err(err)
	}

	return &VariantIndexBuilder{
		db:       db,
		tx:       tx,
		insert:   insert,
		bgenPath: bgenPath,
	}, nil
}

// Add appends one entry. A failure here leaves the already-written BGEN
// bytes untouched; index and data file consistency is append-only and
// best-effort, not transactional.
func (ix *VariantIndexBuilder) Add(e BgenOffsetEntry) error {
	_, err := ix.insert.Exec(e.Chromosome, e.Position, e.RSID, e.NAlleles,
		string(e.Allele1), string(e.Allele2), e.FileStartPosition, e.SizeInBytes)
	if err != nil {
		return pfx.Err(err)
	}
	ix.nEntries++

	return nil
}

// NEntries is the number of entries added so far.
func (ix *VariantIndexBuilder) NEntries() int64 {
	return ix.nEntries
}

// Close commits the pending entries, writes the Metadata row, and releases
// the store. The data file must be finalized before Close so the recorded
// size and header bytes reflect the finished file.
func (ix *VariantIndexBuilder) Close() error {
	if err := ix.tx.Commit(); err != nil {
		ix.db.Close()
		return pfx.Err(err)
	}

	if err := ix.writeMetadata(); err != nil {
		ix.db.Close()
		return err
	}

	return ix.db.Close()
}

// Abort discards uncommitted entries and releases the store.
func (ix *VariantIndexBuilder) Abort() error {
	_ = ix.tx.Rollback()
	return ix.db.Close()
}

func (ix *VariantIndexBuilder) writeMetadata() error {
	st, err := os.Stat(ix.bgenPath)
	if err != nil {
		return pfx.Err(err)
	}

	first1000 := make([]byte, 1000)
	f, err := os.Open(ix.bgenPath)
	if err != nil {
		return pfx.Err(err)
	}
	n, _ := f.Read(first1000)
	f.Close()
	first1000 = first1000[:n]

	now := Time(time.Now())
	if _, err = ix.db.Exec(
		"INSERT INTO Metadata (filename, file_size, last_write_time, first_1000_bytes, index_creation_time) VALUES (?, ?, ?, ?, ?)",
		ix.bgenPath, st.Size(), Time(st.ModTime()), first1000, now); err != nil {
		return pfx.Err(err)
	}

	return nil
}
