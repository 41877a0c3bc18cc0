package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round trips an image through Save, Get and Delete", func() {
		name, err := storage.Save("scan-1.jpg", []byte("jpeg bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("scan-1.jpg"))
		Expect(filepath.Join(tmpDir, name)).To(BeAnExistingFile())

		data, err := storage.Get(name)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("jpeg bytes"))

		Expect(storage.Delete(name)).To(Succeed())
		Expect(filepath.Join(tmpDir, name)).NotTo(BeAnExistingFile())

		_, err = storage.Get(name)
		Expect(err).To(MatchError(ContainSubstring("reading file")))
	})

	It("writes images readable by the owner only", func() {
		name, err := storage.Save("scan-2.png", []byte("png"))
		Expect(err).NotTo(HaveOccurred())

		info, err := os.Stat(filepath.Join(tmpDir, name))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))
	})

	It("keeps files inside its directory", func() {
		name, err := storage.Save("../../escape.jpg", []byte("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("escape.jpg"))
		Expect(filepath.Join(tmpDir, "escape.jpg")).To(BeAnExistingFile())
	})

	It("reports deleting a missing file", func() {
		Expect(storage.Delete("missing.jpg")).To(MatchError(ContainSubstring("deleting file")))
	})

	It("creates a missing directory", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "scans")
		_, err := NewLocalStorage(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(dir).To(BeADirectory())
	})
})
