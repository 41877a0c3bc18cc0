package category

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Dictionary", func() {
	Describe("DefaultDictionary", func() {
		It("loads the bundled categories", func() {
			dict, err := DefaultDictionary()
			Expect(err).NotTo(HaveOccurred())
			Expect(dict.Default()).To(Equal("Khác"))
			Expect(dict.Categories()).NotTo(BeEmpty())
		})
	})

	Describe("Canonical", func() {
		var dict *Dictionary

		BeforeEach(func() {
			var err error
			dict, err = DefaultDictionary()
			Expect(err).NotTo(HaveOccurred())
		})

		It("resolves spelling variants", func() {
			name, err := dict.Canonical("Sức khoẻ")
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("Sức khỏe"))
		})

		It("resolves aliases", func() {
			name, err := dict.Canonical("food")
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("Thực phẩm"))
		})

		It("rejects unknown names", func() {
			_, err := dict.Canonical("Du thuyền")
			Expect(err).To(MatchError(ErrUnknownCategory))
		})
	})

	Describe("NewDictionary", func() {
		It("requires a default category", func() {
			_, err := NewDictionary("  ", nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects duplicate names", func() {
			_, err := NewDictionary("Khác", []Category{{Name: "Ăn uống"}, {Name: "an uong"}})
			Expect(err).To(MatchError(ContainSubstring("duplicate")))
		})

		It("adds a missing default category to the set", func() {
			dict, err := NewDictionary("Khác", []Category{{Name: "Thực phẩm"}})
			Expect(err).NotTo(HaveOccurred())
			name, err := dict.Canonical("khac")
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("Khác"))
		})

		It("does not share keyword slices with the caller", func() {
			keywords := []string{"gạo"}
			dict, err := NewDictionary("Khác", []Category{{Name: "Thực phẩm", Keywords: keywords}})
			Expect(err).NotTo(HaveOccurred())
			keywords[0] = "xăng"
			Expect(Match("Gạo ST25", dict).Category).To(Equal("Thực phẩm"))
		})
	})

	Describe("LoadDictionary", func() {
		It("reads a YAML file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "categories.yaml")
			Expect(os.WriteFile(path, []byte("default: Other\ncategories:\n  - name: Fuel\n    keywords: [petrol]\n"), 0o644)).To(Succeed())

			dict, err := LoadDictionary(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(dict.Default()).To(Equal("Other"))
			Expect(Match("Petrol 95", dict).Category).To(Equal("Fuel"))
		})

		It("returns an error for a missing file", func() {
			_, err := LoadDictionary(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).To(HaveOccurred())
		})
	})
})
