package vcf2bgen

// Choose k from n items can be done in this many ways. Originally derived from
// github.com/limix/bgen /src/util/choose.c
func Choose(n, k int) int {
	if n == 3 && k == 1 {
		// Fastest path, since this is the usual result
		return 3
	} else if k == 1 {
		return n
	}

	ans := 1

	if k > n-k {
		k = n - k
	}

	for j := 1; j <= k; j++ {
		if n%j == 0 {
			ans *= n / j
		} else if ans%j == 0 {
			ans = ans / j * n
		} else {
			ans = (ans * n) / j
		}

		n--
	}

	return ans
}

// NGenotypes is the number of possible unordered genotypes for a sample of
// the given ploidy at a site with nAlleles alleles: C(nAlleles+ploidy-1, ploidy).
func NGenotypes(nAlleles, ploidy int) int {
	if ploidy == 0 {
		return 1
	}

	return Choose(nAlleles+ploidy-1, ploidy)
}

// GenotypeIndex ranks a sorted (non-decreasing) allele tuple within the
// canonical genotype enumeration: alleles ascending, tuples in lexicographic
// order. For diploid biallelic sites this yields 0/0=0, 0/1=1, 1/1=2.
func GenotypeIndex(alleles []int, nAlleles int) int {
	idx := 0
	prev := 0
	for m, a := range alleles {
		remaining := len(alleles) - m - 1
		for b := prev; b < a; b++ {
			// Tuples that place allele b here and anything >= b after it.
			idx += NGenotypes(nAlleles-b, remaining)
		}
		prev = a
	}

	return idx
}

func WhichSQLiteDriver() string {
	return whichSQLiteDriver
}
