package cache

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/rust-lang/docs.rs-sub002/internal/surrogate"
)

var _ = Describe("Policy.Render", func() {
	enabled := Config{CacheInvalidatableResponses: true, StaleWhileRevalidateSeconds: 86400}

	It("renders NoCaching as max-age=0 with no surrogate headers", func() {
		h := NoCachingPolicy().Render(enabled)
		Expect(h.CacheControl).To(Equal("max-age=0"))
		Expect(h.SurrogateControl).To(BeEmpty())
		Expect(h.SurrogateKey).To(BeEmpty())
	})

	It("renders NoStoreMustRevalidate exactly", func() {
		h := NoStoreMustRevalidatePolicy().Render(enabled)
		Expect(h.CacheControl).To(Equal("no-cache, no-store, must-revalidate, max-age=0"))
	})

	It("renders ForeverInCdnAndBrowser exactly", func() {
		h := ForeverInCdnAndBrowserPolicy().Render(enabled)
		Expect(h.CacheControl).To(Equal("public, max-age=31104000, immutable"))
	})

	It("always includes the global all key for ForeverInCdn", func() {
		crateKey, _ := surrogate.NewKey("crate-serde")
		h := ForeverInCdnPolicy([]surrogate.Key{crateKey}).Render(enabled)
		Expect(h.CacheControl).To(Equal("max-age=0"))
		Expect(h.SurrogateControl).To(Equal("max-age=31536000"))
		Expect(h.SurrogateKey).To(Equal("crate-serde all"))
	})

	It("renders ForeverInCdnAndStaleInBrowser's stale-while-revalidate from config", func() {
		crateKey, _ := surrogate.NewKey("crate-serde")
		h := ForeverInCdnAndStaleInBrowserPolicy([]surrogate.Key{crateKey}).Render(enabled)
		Expect(h.CacheControl).To(Equal("stale-while-revalidate=86400"))
		Expect(h.SurrogateKey).To(Equal("crate-serde all"))
	})

	It("degrades ForeverInCdn to NoCaching byte-identically when invalidatable responses are disabled", func() {
		disabled := Config{CacheInvalidatableResponses: false}
		crateKey, _ := surrogate.NewKey("crate-serde")
		got := ForeverInCdnPolicy([]surrogate.Key{crateKey}).Render(disabled)
		want := NoCachingPolicy().Render(disabled)
		Expect(got).To(Equal(want))
	})

	It("degrades ForeverInCdnAndStaleInBrowser to NoCaching byte-identically when invalidatable responses are disabled", func() {
		disabled := Config{CacheInvalidatableResponses: false}
		crateKey, _ := surrogate.NewKey("crate-serde")
		got := ForeverInCdnAndStaleInBrowserPolicy([]surrogate.Key{crateKey}).Render(disabled)
		want := NoCachingPolicy().Render(disabled)
		Expect(got).To(Equal(want))
	})
})
