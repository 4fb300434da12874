package surrogate

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Key validation", func() {
	It("accepts printable ASCII within the size bound", func() {
		k, err := NewKey("crate-serde")
		Expect(err).NotTo(HaveOccurred())
		Expect(k).To(Equal(Key("crate-serde")))
	})

	It("rejects an empty key", func() {
		_, err := NewKey("")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a key longer than MaxKeyLength", func() {
		_, err := NewKey(strings.Repeat("a", MaxKeyLength+1))
		Expect(err).To(HaveOccurred())
	})

	It("accepts a key exactly at MaxKeyLength", func() {
		_, err := NewKey(strings.Repeat("a", MaxKeyLength))
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects bytes outside 0x21..=0x7E", func() {
		_, err := NewKey("crate \tserde")
		Expect(err).To(HaveOccurred())
	})

	It("builds a crate key with the documented prefix", func() {
		k, err := CrateKey("serde")
		Expect(err).NotTo(HaveOccurred())
		Expect(k).To(Equal(Key("crate-serde")))
	})
})

var _ = Describe("Set", func() {
	It("preserves insertion order and dedupes", func() {
		s := NewSet()
		s.Add(Key("b"))
		s.Add(Key("a"))
		s.Add(Key("b"))
		Expect(s.Len()).To(Equal(2))
		Expect(s.Keys()).To(Equal([]Key{"b", "a"}))
	})

	It("renders a space-joined header", func() {
		s := NewSet()
		s.Add(Key("crate-a"))
		s.Add(Key("all"))
		Expect(s.Header()).To(Equal("crate-a all"))
	})

	It("computes encoded length as keys plus separators minus one", func() {
		s := NewSet()
		s.Add(Key("ab"))
		s.Add(Key("cde"))
		Expect(s.EncodedLen()).To(Equal(len("ab cde")))
	})

	It("reports zero encoded length when empty", func() {
		Expect(NewSet().EncodedLen()).To(Equal(0))
	})
})

var _ = Describe("FromIterUntilFull", func() {
	It("takes every key when well under both bounds", func() {
		keys := []Key{"crate-a", "crate-b", "all"}
		it := NewSliceIterator(keys)
		batch := FromIterUntilFull(it)
		Expect(batch.Len()).To(Equal(3))
		Expect(it.Remaining()).To(Equal(0))
	})

	It("is bounded only by MaxHeaderBytes, not by any key count", func() {
		// §8: from_iter_until_full is bounded solely by encoded_len <=
		// MaxHeaderBytes. The CDN Purger's own 256-key partitioning bound
		// (§4.4) is layered on top by that caller, not enforced here — a
		// batch of uniform 5-byte keys comfortably exceeds 256 entries while
		// still respecting the byte bound.
		keys := make([]Key, 10000)
		for i := range keys {
			keys[i] = Key(fmt.Sprintf("k%04d", i)) // fixed-width: 5 bytes each
		}
		it := NewSliceIterator(keys)
		batch := FromIterUntilFull(it)
		Expect(batch.Len()).To(BeNumerically(">", MaxBatchKeys))
		Expect(batch.EncodedLen()).To(BeNumerically("<=", MaxHeaderBytes))
		Expect(it.Remaining()).To(BeNumerically(">", 0)) // 10,000 * 6 bytes far exceeds MaxHeaderBytes
	})

	It("stops before exceeding MaxHeaderBytes", func() {
		// Each key is 1001 bytes; 16 of them would be 16016 + 15 separators =
		// 16031, still under 16384, but 17 would push past it (17033).
		longKey := Key(strings.Repeat("x", 1000))
		keys := make([]Key, 20)
		for i := range keys {
			keys[i] = Key(string(longKey) + string(rune('a'+i)))
		}
		it := NewSliceIterator(keys)
		batch := FromIterUntilFull(it)
		Expect(batch.EncodedLen()).To(BeNumerically("<=", MaxHeaderBytes))
		Expect(it.Remaining()).To(BeNumerically(">", 0))
	})

	It("skips a duplicate without consuming header budget twice", func() {
		keys := []Key{"a", "a", "b"}
		it := NewSliceIterator(keys)
		batch := FromIterUntilFull(it)
		Expect(batch.Len()).To(Equal(2))
		Expect(batch.Keys()).To(Equal([]Key{"a", "b"}))
	})

	It("terminates even when a single oversized key can never fit a fresh batch", func() {
		oversized := Key(strings.Repeat("z", MaxHeaderBytes+1))
		// NewKey would reject this, but FromIterUntilFull operates on
		// already-validated Keys and must not infinite-loop regardless.
		it := NewSliceIterator([]Key{oversized})
		batch := FromIterUntilFull(it)
		Expect(batch.Len()).To(Equal(0))
		Expect(it.Remaining()).To(Equal(1))
	})
})

var _ = Describe("TryExtend", func() {
	It("adds keys that fit and accepts a key already in the set", func() {
		s := NewSet()
		s.Add(Key("existing"))
		err := TryExtend(s, []Key{"a", "b", "existing"})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Keys()).To(Equal([]Key{"existing", "a", "b"}))
	})

	It("errors and leaves the set untouched when the byte bound would be exceeded", func() {
		s := NewSet()
		s.Add(Key(strings.Repeat("x", MaxHeaderBytes-10)))
		before := s.Len()
		err := TryExtend(s, []Key{Key(strings.Repeat("y", 20))})
		Expect(err).To(HaveOccurred())
		Expect(s.Len()).To(Equal(before))
	})

	It("does not cap the number of keys it will add, only their encoded length", func() {
		s := NewSet()
		keys := make([]Key, MaxBatchKeys+10)
		for i := range keys {
			keys[i] = Key(fmt.Sprintf("k%04d", i))
		}
		err := TryExtend(s, keys)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Len()).To(Equal(MaxBatchKeys + 10))
	})
})
