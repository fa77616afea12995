package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/awhite/billfold/internal/scanning"
)

// mockAssistant returns a canned answer.
type mockAssistant struct {
	answer    string
	err       error
	questions []string
}

func (m *mockAssistant) Answer(ctx context.Context, question string, receipts []Receipt, insights Insights) (string, error) {
	m.questions = append(m.questions, question)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

var _ = Describe("Server", func() {
	var (
		ctx       context.Context
		repo      *mockRepository
		store     *Store
		images    *mockImages
		scanner   *mockScanner
		assistant *mockAssistant
		server    *Server
		auth      BasicAuth
	)

	do := func(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, path, reader)
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		store = NewStore(repo, &fakeSnapshotter{})
		images = newMockImages()
		scanner = &mockScanner{}
		assistant = &mockAssistant{answer: "You spent nothing yet."}
		auth = BasicAuth{}
		ingestor := NewIngestorWithDeps(store, images, scanner, &fixedIDGenerator{id: "CAPTURE1"})
		server = NewServerWithMux(store, ingestor, images, assistant, auth, http.NewServeMux())
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
			ingestor := NewIngestorWithDeps(store, images, scanner, &fixedIDGenerator{id: "CAPTURE1"})
			server = NewServerWithMux(store, ingestor, images, assistant, auth, http.NewServeMux())
		})

		It("rejects requests without credentials", func() {
			req := httptest.NewRequest("GET", "/api/receipts", nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects bad credentials", func() {
			req := httptest.NewRequest("GET", "/api/receipts", nil)
			req.SetBasicAuth("user", "wrong")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts good credentials", func() {
			Expect(do("GET", "/api/receipts", nil, nil).Code).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /api/receipts", func() {
		It("returns the current list as JSON", func() {
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Grocer",
				Items:        []ItemDraft{{Name: "Milk", Price: 4}},
			})).To(Succeed())

			rec := do("GET", "/api/receipts", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var listed []Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].MerchantName).To(Equal("Grocer"))
		})
	})

	Describe("POST /api/receipts", func() {
		It("creates a receipt from a JSON draft", func() {
			body, err := json.Marshal(ReceiptDraft{
				MerchantName: "Diner",
				Items:        []ItemDraft{{Name: "Lunch", Price: 9.5}},
			})
			Expect(err).NotTo(HaveOccurred())

			rec := do("POST", "/api/receipts", body, map[string]string{"Content-Type": "application/json"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(store.Receipts()).To(HaveLen(1))
		})

		It("rejects a draft with no valid items", func() {
			body, err := json.Marshal(ReceiptDraft{MerchantName: "Empty"})
			Expect(err).NotTo(HaveOccurred())

			rec := do("POST", "/api/receipts", body, map[string]string{"Content-Type": "application/json"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(store.Receipts()).To(BeEmpty())
		})

		It("runs a multipart upload through capture ingestion", func() {
			scanner.extraction = &scanning.Extraction{
				MerchantName: "Corner Cafe",
				Date:         "2024-06-01",
				TotalAmount:  12.5,
				Items:        []scanning.Item{{Name: "Sandwich", Price: 12.5, Quantity: 1, Category: "Dining"}},
			}

			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			part, err := writer.CreateFormFile("file", "receipt.png")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("png-bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			rec := do("POST", "/api/receipts", buf.Bytes(), map[string]string{
				"Content-Type": writer.FormDataContentType(),
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var created Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
			Expect(created.MerchantName).To(Equal("Corner Cafe"))
			Expect(images.saved).NotTo(BeEmpty())
		})

		It("rejects a multipart request without a file part", func() {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			Expect(writer.WriteField("note", "no file here")).To(Succeed())
			Expect(writer.Close()).To(Succeed())

			rec := do("POST", "/api/receipts", buf.Bytes(), map[string]string{
				"Content-Type": writer.FormDataContentType(),
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		It("returns 404 for a missing receipt", func() {
			Expect(do("GET", "/api/receipts/999", nil, nil).Code).To(Equal(http.StatusNotFound))
		})

		It("returns the receipt when present", func() {
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Pharmacy",
				Items:        []ItemDraft{{Name: "Bandages", Price: 6}},
			})).To(Succeed())
			id := store.Receipts()[0].ID

			rec := do("GET", "/api/receipts/"+id, nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var got Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got.MerchantName).To(Equal("Pharmacy"))
		})
	})

	Describe("PUT /api/receipts/{id}", func() {
		It("applies a partial update and returns the new record", func() {
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Before",
				Items:        []ItemDraft{{Name: "Thing", Price: 2}},
			})).To(Succeed())
			id := store.Receipts()[0].ID

			rec := do("PUT", "/api/receipts/"+id, []byte(`{"merchantName":"After"}`), map[string]string{
				"Content-Type": "application/json",
			})
			Expect(rec.Code).To(Equal(http.StatusOK))

			var got Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got.MerchantName).To(Equal("After"))
		})

		It("returns 404 for a missing receipt", func() {
			rec := do("PUT", "/api/receipts/999", []byte(`{"merchantName":"Ghost"}`), map[string]string{
				"Content-Type": "application/json",
			})
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		It("removes the receipt", func() {
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Ephemeral",
				Items:        []ItemDraft{{Name: "Thing", Price: 2}},
			})).To(Succeed())
			id := store.Receipts()[0].ID

			Expect(do("DELETE", "/api/receipts/"+id, nil, nil).Code).To(Equal(http.StatusNoContent))
			Expect(store.Receipts()).To(BeEmpty())
		})
	})

	Describe("GET /api/receipts/{id}/image", func() {
		It("serves the stored image bytes", func() {
			uri, err := images.Save("receipt.png", []byte("\x89PNG fake bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Scanned",
				ImageURI:     uri,
				Items:        []ItemDraft{{Name: "Thing", Price: 2}},
			})).To(Succeed())
			id := store.Receipts()[0].ID

			rec := do("GET", "/api/receipts/"+id+"/image", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("PNG"))
		})

		It("returns 404 when the receipt has no image", func() {
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Manual",
				Items:        []ItemDraft{{Name: "Thing", Price: 2}},
			})).To(Succeed())
			id := store.Receipts()[0].ID

			Expect(do("GET", "/api/receipts/"+id+"/image", nil, nil).Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/insights", func() {
		It("returns recomputed analytics", func() {
			Expect(store.AddReceipt(ctx, ReceiptDraft{
				MerchantName: "Grocer",
				TotalAmount:  fptr(30),
				Category:     Groceries,
				Items:        []ItemDraft{{Name: "Food", Price: 30, Category: "Groceries"}},
			})).To(Succeed())

			rec := do("GET", "/api/insights", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var insights Insights
			Expect(json.Unmarshal(rec.Body.Bytes(), &insights)).To(Succeed())
			Expect(insights.TotalSpending).To(Equal(30.0))
			Expect(insights.CategorySpending).To(HaveKeyWithValue("Groceries", 30.0))
		})
	})

	Describe("chat endpoints", func() {
		It("records the question and the assistant's reply", func() {
			rec := do("POST", "/api/chat", []byte(`{"text":"how much did I spend?"}`), map[string]string{
				"Content-Type": "application/json",
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var reply ChatMessage
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.IsUser).To(BeFalse())
			Expect(reply.Text).To(Equal("You spent nothing yet."))

			Expect(assistant.questions).To(ConsistOf("how much did I spend?"))

			log := store.ChatMessages()
			Expect(log).To(HaveLen(2))
			Expect(log[0].IsUser).To(BeTrue())
		})

		It("substitutes an apology when the assistant fails", func() {
			assistant.err = fmt.Errorf("model offline")

			rec := do("POST", "/api/chat", []byte(`{"text":"hello"}`), map[string]string{
				"Content-Type": "application/json",
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var reply ChatMessage
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.Text).To(ContainSubstring("Sorry"))
		})

		It("rejects blank messages", func() {
			rec := do("POST", "/api/chat", []byte(`{"text":"   "}`), map[string]string{
				"Content-Type": "application/json",
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("lists and clears the history", func() {
			store.AddChatMessage("hello", true)

			rec := do("GET", "/api/chat", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(rec.Body.String())).To(ContainSubstring("hello"))

			Expect(do("DELETE", "/api/chat", nil, nil).Code).To(Equal(http.StatusNoContent))
			Expect(store.ChatMessages()).To(BeEmpty())
		})
	})
})
