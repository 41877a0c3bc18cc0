package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Image conversion", func() {
	Describe("toPNG", func() {
		It("re-encodes a PNG", func() {
			out, err := toPNG(Image{Data: testPNG(20, 10), ContentType: "image/png"})
			Expect(err).NotTo(HaveOccurred())

			decoded, format, err := image.Decode(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(decoded.Bounds().Dx()).To(Equal(20))
		})

		It("rejects empty input", func() {
			_, err := toPNG(Image{ContentType: "image/png"})
			Expect(err).To(MatchError("empty image"))
		})

		It("rejects undecodable bytes", func() {
			_, err := toPNG(Image{Data: []byte("definitely not an image"), ContentType: "image/jpeg"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("prepareForOCR", func() {
		It("upscales short images", func() {
			out, err := prepareForOCR(Image{Data: testPNG(100, 50), ContentType: "image/png"})
			Expect(err).NotTo(HaveOccurred())

			decoded, _, err := image.Decode(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Bounds().Dy()).To(Equal(minOCRHeight))
			Expect(decoded.Bounds().Dx()).To(Equal(2400))
		})
	})

	DescribeTable("normalizeMIME",
		func(in, want string) {
			Expect(normalizeMIME(in)).To(Equal(want))
		},
		Entry("empty defaults to jpeg", "", "image/jpeg"),
		Entry("parameters stripped", "image/PNG; charset=binary", "image/png"),
		Entry("pdf", "application/pdf", "application/pdf"),
	)

	It("detects HEIC by its ftyp brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic0000"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom0000"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
		Expect(isHEICMimeType("image/heif")).To(BeTrue())
	})
})
