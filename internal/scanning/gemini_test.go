package scanning

import (
	"context"
	"errors"
	"time"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ledger/internal/lineitem"
)

type fakeModel struct {
	resp  *genai.GenerateContentResponse
	err   error
	block bool
	parts []genai.Part
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	if f.block {
		<-ctx.Done()
		return nil, errors.New("rpc canceled")
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}},
		},
	}
}

var _ = Describe("Gemini", func() {
	var (
		model   *fakeModel
		scanner *Gemini
		img     Image
	)

	BeforeEach(func() {
		model = &fakeModel{}
		scanner = newGemini(nil, model, time.Second)
		img = Image{Data: testPNG(20, 20), ContentType: "image/png"}
	})

	It("returns validated items", func() {
		model.resp = textResponse(`{"items": [{"description": "Phở bò", "quantity": 1, "unit_price": 55000, "line_total": 55000, "discount": 0}]}`)

		result, err := scanner.ScanReceipt(context.Background(), img, LanguageVietnamese)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Kind).To(Equal(KindItems))
		Expect(result.Items).To(HaveLen(1))
		Expect(result.Items[0].Description).To(Equal("Phở bò"))
		Expect(result.Items[0].LineTotal).To(Equal(lineitem.Amount(55000)))
	})

	It("sends the image and the instructions", func() {
		model.resp = textResponse(`{"items": []}`)

		_, err := scanner.ScanReceipt(context.Background(), img, LanguageEnglish)
		Expect(err).NotTo(HaveOccurred())
		Expect(model.parts).To(HaveLen(2))
		blob, ok := model.parts[0].(genai.Blob)
		Expect(ok).To(BeTrue())
		Expect(blob.MIMEType).To(Equal("image/png"))
		Expect(model.parts[1]).To(Equal(genai.Text(promptFor(LanguageEnglish))))
	})

	It("fails on a transport error", func() {
		model.err = errors.New("quota exceeded")

		_, err := scanner.ScanReceipt(context.Background(), img, LanguageVietnamese)
		Expect(errors.Is(err, ErrExtractionFailed)).To(BeTrue())
	})

	It("fails when the request outlives the timeout", func() {
		model.block = true
		scanner = newGemini(nil, model, 20*time.Millisecond)

		result, err := scanner.ScanReceipt(context.Background(), img, LanguageVietnamese)
		Expect(result).To(BeNil())
		Expect(errors.Is(err, ErrExtractionFailed)).To(BeTrue())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("reports an empty answer as malformed", func() {
		model.resp = &genai.GenerateContentResponse{}

		_, err := scanner.ScanReceipt(context.Background(), img, LanguageVietnamese)
		Expect(errors.Is(err, ErrExtractionMalformed)).To(BeTrue())
	})

	It("reports invalid items as malformed", func() {
		model.resp = textResponse(`{"items": [{"description": "Phở bò", "line_total": "55k"}]}`)

		result, err := scanner.ScanReceipt(context.Background(), img, LanguageVietnamese)
		Expect(result).To(BeNil())
		Expect(errors.Is(err, ErrExtractionMalformed)).To(BeTrue())
	})

	It("requires an api key", func() {
		_, err := NewGemini("", "", 0)
		Expect(err).To(MatchError("gemini api key is required"))
	})

	It("closes without a client", func() {
		Expect(scanner.Close()).To(Succeed())
		Expect(scanner.Strategy()).To(Equal("gemini"))
	})
})
