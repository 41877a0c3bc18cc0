package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-ledger/internal/category"
	"github.com/zombor/receipt-ledger/internal/expense"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

var ghttpMatchAll = regexp.MustCompile(`.*`)

func multipartUpload(field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	} else {
		Expect(writer.WriteField("note", "no file")).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		store       *mockStore
		storage     *mockStorage
		scanner     *mockScanner
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		store = newMockStore()
		storage = newMockStorage()
		scanner = newMockScanner()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		dictionary, err := category.DefaultDictionary()
		Expect(err).NotTo(HaveOccurred())
		service := NewServiceWithDeps(store, scanner, storage, dictionary, &mockPublisher{}, Config{}, &sequenceIDGenerator{}, &mockTimeSource{now: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.RouteToHandler(http.MethodGet, ghttpMatchAll, server.ServeHTTP)
		ghttpServer.RouteToHandler(http.MethodPost, ghttpMatchAll, server.ServeHTTP)
		ghttpServer.RouteToHandler(http.MethodDelete, ghttpMatchAll, server.ServeHTTP)
		ghttpServer.RouteToHandler(http.MethodOptions, ghttpMatchAll, server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	postScan := func(body *bytes.Buffer, contentType string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+"/api/receipts/scan", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	Describe("POST /api/receipts/scan", func() {
		It("returns the categorized items", func() {
			resp := postScan(multipartUpload("file", "receipt.jpg", "image/jpeg", []byte("jpeg")))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))

			var result ScanResult
			decode(resp, &result)
			Expect(result.Status).To(Equal(StatusItems))
			Expect(result.Items).To(HaveLen(2))
			Expect(result.Items[0].Category).To(Equal("Thực phẩm"))
			Expect(storage.fileCount()).To(BeZero())
		})

		It("falls back to the file extension for the content type", func() {
			resp := postScan(multipartUpload("file", "receipt.heic", "", []byte("heic")))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(scanner.lastImg.ContentType).To(Equal("image/heic"))
		})

		It("rejects a request without a file", func() {
			resp := postScan(multipartUpload("", "", "", nil))
			var body map[string]string
			decode(resp, &body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("No file was selected"))
		})

		It("rejects an empty file as an acquisition failure", func() {
			resp := postScan(multipartUpload("file", "empty.jpg", "image/jpeg", nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("maps extraction failures to 502", func() {
			scanner.scanErr = &scanning.ExtractionError{Kind: scanning.ErrExtractionFailed, Reason: "calling ollama API", Err: errors.New("connection refused")}
			resp := postScan(multipartUpload("file", "receipt.jpg", "image/jpeg", []byte("jpeg")))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(storage.fileCount()).To(BeZero())
		})

		It("maps malformed responses to 422", func() {
			scanner.scanErr = &scanning.ExtractionError{Kind: scanning.ErrExtractionMalformed, Reason: "item 0"}
			resp := postScan(multipartUpload("file", "receipt.jpg", "image/jpeg", []byte("jpeg")))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})
	})

	Describe("POST /api/expenses", func() {
		commit := func(req any) *http.Response {
			data, err := json.Marshal(req)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.Post(ghttpServer.URL()+"/api/expenses", "application/json", bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		var req CommitRequest

		BeforeEach(func() {
			req = CommitRequest{
				UserID: "user-1",
				Items: []CommitItem{
					{Description: "Phở bò", Amount: 55000, Category: "Thực phẩm", Accepted: true},
					{Description: "Khẩu trang", Amount: 15000, Category: "Sức khỏe", Accepted: true},
				},
			}
		})

		It("returns 201 when every accepted item is stored", func() {
			resp := commit(req)
			var result CommitResult
			decode(resp, &result)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(result.Stored).To(Equal(2))
		})

		It("returns 207 with per-item results when an item fails", func() {
			store.failOn["Khẩu trang"] = errors.New("disk I/O error")
			resp := commit(req)
			var result CommitResult
			decode(resp, &result)
			Expect(resp.StatusCode).To(Equal(http.StatusMultiStatus))
			Expect(result.Results[0].Status).To(Equal(ItemStored))
			Expect(result.Results[1].Status).To(Equal(ItemFailed))
		})

		It("returns 400 for an invalid request", func() {
			req.UserID = ""
			resp := commit(req)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns 413 for an oversized body without storing anything", func() {
			req.Note = string(bytes.Repeat([]byte("a"), 2<<20))
			data, err := json.Marshal(req)
			Expect(err).NotTo(HaveOccurred())

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/expenses", bytes.NewReader(data)))
			Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(store.records).To(BeEmpty())
		})

		It("returns 400 for a body that is not JSON", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/expenses", "application/json", bytes.NewBufferString("{"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("expense resources", func() {
		BeforeEach(func() {
			store.records["exp-1"] = &expense.Record{ID: "exp-1", UserID: "user-1", Description: "Phở bò", Amount: 55000}
			store.records["exp-2"] = &expense.Record{ID: "exp-2", UserID: "user-2", Description: "Grab", Amount: 32000}
		})

		It("lists expenses filtered by user", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/expenses?user_id=user-1")
			Expect(err).NotTo(HaveOccurred())
			var records []*expense.Record
			decode(resp, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("exp-1"))
		})

		It("gets one expense", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/expenses/exp-2")
			Expect(err).NotTo(HaveOccurred())
			var record expense.Record
			decode(resp, &record)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(record.Description).To(Equal("Grab"))
		})

		It("returns 404 for a missing expense", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/expenses/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("deletes an expense", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/expenses/exp-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.records).NotTo(HaveKey("exp-1"))
		})

		It("returns 500 when the delete cannot be verified", func() {
			store.deleteErr = expense.ErrDeleteNotVerified
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/expenses/exp-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /api/categories", func() {
		It("returns the categories, the default and the expense types", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/categories")
			Expect(err).NotTo(HaveOccurred())
			var body categoriesResponse
			decode(resp, &body)
			Expect(body.Default).To(Equal("Khác"))
			Expect(body.Categories).NotTo(BeEmpty())
			Expect(body.Categories[0].Name).To(Equal("Thực phẩm"))
			Expect(body.ExpenseTypes).To(Equal(ExpenseTypes))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/expenses", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		get := func(credentials string) *http.Response {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/categories", nil)
			Expect(err).NotTo(HaveOccurred())
			if credentials != "" {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
			}
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			return resp
		}

		It("rejects missing credentials", func() {
			resp := get("")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Receipt Ledger"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("rejects wrong credentials", func() {
			Expect(get("admin:wrong").StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts the configured credentials", func() {
			Expect(get("admin:secret").StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
