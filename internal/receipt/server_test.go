package receipt

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pateln09/splitsies/internal/extraction"
	"github.com/pateln09/splitsies/internal/metrics"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		parser      *mockParser
		service     *Service
		server      *Server
		auth        BasicAuth
		gatherer    prometheus.Gatherer
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, gatherer, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		anyPath := regexp.MustCompile(`.*`)
		for _, method := range []string{"GET", "POST", "PATCH", "DELETE"} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		parser = newMockParser()
		service = NewServiceWithDeps(db, parser, newMockStorage(), &seqIDGenerator{prefix: "id"}, &mockTimeSource{})
		auth = BasicAuth{}
		gatherer = nil
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	uploadReceipt := func(filename string) *http.Response {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		part.Write([]byte("fake image data"))
		writer.Close()

		resp, err := http.Post(ghttpServer.URL()+"/api/receipts", writer.FormDataContentType(), &b)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeBody := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).NotTo(HaveOccurred())
	}

	Describe("handleStatus", func() {
		It("should report the idle state before any upload", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/status")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var status map[string]string
			decodeBody(resp, &status)
			Expect(status["state"]).To(Equal("idle"))
			Expect(status["message"]).To(BeEmpty())
		})
	})

	Describe("handleUploadReceipt", func() {
		When("upload succeeds", func() {
			It("should return status Created with the receipt", func() {
				resp := uploadReceipt("test.jpg")
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var receipt Receipt
				decodeBody(resp, &receipt)
				Expect(receipt.ID).NotTo(BeEmpty())
				Expect(receipt.Items).To(HaveLen(2))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("extraction returns a malformed result", func() {
			BeforeEach(func() {
				parser.parseErr = extraction.ErrMalformedResult
			})

			It("should return status Unprocessable Entity with the parse-failure message", func() {
				resp := uploadReceipt("test.jpg")
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var response map[string]string
				decodeBody(resp, &response)
				Expect(response["error"]).To(Equal("Couldn't parse that receipt. You can still enter it manually."))
			})
		})

		When("the credential is missing", func() {
			BeforeEach(func() {
				parser.parseErr = extraction.ErrMissingCredential
			})

			It("should return status Service Unavailable with the configuration message", func() {
				resp := uploadReceipt("test.jpg")
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))

				var response map[string]string
				decodeBody(resp, &response)
				Expect(response["error"]).To(Equal("Gemini API key not configured."))
			})
		})
	})

	Describe("handleGetReceipt", func() {
		When("receipt exists", func() {
			BeforeEach(func() {
				db.receipts["test-id"] = &Receipt{ID: "test-id", StoreName: strPtr("Joe's Diner")}
			})

			It("should return the receipt", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/test-id")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var receipt Receipt
				decodeBody(resp, &receipt)
				Expect(*receipt.StoreName).To(Equal("Joe's Diner"))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleDeleteReceipt", func() {
		When("receipt exists", func() {
			BeforeEach(func() {
				db.receipts["test-id"] = &Receipt{ID: "test-id"}
			})

			It("should return status No Content", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/test-id", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				resp.Body.Close()
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/nonexistent", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleUpdateItem", func() {
		BeforeEach(func() {
			db.receipts["r-1"] = &Receipt{
				ID:    "r-1",
				Items: []ReceiptItem{{ID: "i-1", Name: strPtr("Burger"), Price: floatPtr(10.00)}},
			}
		})

		It("should sanitize the price edit", func() {
			body := strings.NewReader(`{"price": "$12.50"}`)
			req, err := http.NewRequest("PATCH", ghttpServer.URL()+"/api/receipts/r-1/items/i-1", body)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var receipt Receipt
			decodeBody(resp, &receipt)
			Expect(*receipt.Item("i-1").Price).To(Equal(12.50))
		})

		It("should return status Not Found for an unknown item", func() {
			body := strings.NewReader(`{"name": "x"}`)
			req, err := http.NewRequest("PATCH", ghttpServer.URL()+"/api/receipts/r-1/items/i-404", body)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("handleAddFriend", func() {
		It("should return status Created with the new person", func() {
			body := strings.NewReader(`{"name": "Alice", "handle": "@alice"}`)
			resp, err := http.Post(ghttpServer.URL()+"/api/friends", "application/json", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var person Person
			decodeBody(resp, &person)
			Expect(person.ID).NotTo(BeEmpty())
			Expect(person.Name).To(Equal("Alice"))
		})

		It("should return status Bad Request for a duplicate handle", func() {
			db.people["p-1"] = &Person{ID: "p-1", Name: "Alice", Handle: "@alice"}

			body := strings.NewReader(`{"name": "Alicia", "handle": "@ALICE"}`)
			resp, err := http.Post(ghttpServer.URL()+"/api/friends", "application/json", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("handleListFriends", func() {
		BeforeEach(func() {
			db.people["p-2"] = &Person{ID: "p-2", Name: "Bob", Handle: "@bob"}
			db.people["p-1"] = &Person{ID: "p-1", Name: "Alice", Handle: "@alice"}
		})

		It("should return friends ordered by name", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/friends")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var people []Person
			decodeBody(resp, &people)
			Expect(people).To(HaveLen(2))
			Expect(people[0].Name).To(Equal("Alice"))
			Expect(people[1].Name).To(Equal("Bob"))
		})
	})

	Describe("split endpoints", func() {
		BeforeEach(func() {
			db.people["p-alice"] = &Person{ID: "p-alice", Name: "Alice", Handle: "@alice"}
			db.people["p-bob"] = &Person{ID: "p-bob", Name: "Bob", Handle: "@bob"}
			db.receipts["r-1"] = &Receipt{
				ID:       "r-1",
				Subtotal: floatPtr(14.00),
				Items: []ReceiptItem{
					{ID: "i-burger", Name: strPtr("Burger"), Price: floatPtr(10.00)},
					{ID: "i-fries", Name: strPtr("Fries"), Price: floatPtr(4.00)},
				},
			}
		})

		It("should return the even split by default", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/r-1/split")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var summary SplitSummary
			decodeBody(resp, &summary)
			Expect(summary.Totals["p-alice"]).To(Equal(7.00))
			Expect(summary.Totals["p-bob"]).To(Equal(7.00))
			Expect(summary.Labels["i-burger"]).To(Equal("Everyone"))
			Expect(summary.SubtotalMismatch).To(BeFalse())
		})

		It("should toggle an assignment and return the new label", func() {
			body := strings.NewReader(`{"person_id": "p-alice"}`)
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/r-1/split/items/i-burger/toggle", "application/json", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var response map[string]string
			decodeBody(resp, &response)
			Expect(response["label"]).To(Equal("Alice"))

			summaryResp, err := http.Get(ghttpServer.URL() + "/api/receipts/r-1/split")
			Expect(err).NotTo(HaveOccurred())
			var summary SplitSummary
			decodeBody(summaryResp, &summary)
			Expect(summary.Totals["p-alice"]).To(Equal(12.00))
			Expect(summary.Totals["p-bob"]).To(Equal(2.00))
		})

		It("should reject a toggle for a person outside the group", func() {
			body := strings.NewReader(`{"person_id": "p-stranger"}`)
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/r-1/split/items/i-burger/toggle", "application/json", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("should restore the default via the everyone endpoint", func() {
			body := strings.NewReader(`{"person_id": "p-alice"}`)
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts/r-1/split/items/i-burger/toggle", "application/json", body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			resp, err = http.Post(ghttpServer.URL()+"/api/receipts/r-1/split/items/i-burger/everyone", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()

			summaryResp, err := http.Get(ghttpServer.URL() + "/api/receipts/r-1/split")
			Expect(err).NotTo(HaveOccurred())
			var summary SplitSummary
			decodeBody(summaryResp, &summary)
			Expect(summary.Labels["i-burger"]).To(Equal("Everyone"))
		})

		It("should end the session", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/r-1/split", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
		})

		It("should return status Not Found for an unknown receipt", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent/split")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		When("valid credentials are provided", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("wrong credentials are provided", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "wrong")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})
	})

	Describe("metrics endpoint", func() {
		BeforeEach(func() {
			registry := prometheus.NewRegistry()
			service.WithMetrics(metrics.NewExtractionMetrics(registry), "mock")
			gatherer = registry
			setupServer()
		})

		It("should expose extraction counters after an upload", func() {
			resp := uploadReceipt("test.jpg")
			resp.Body.Close()

			metricsResp, err := http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer metricsResp.Body.Close()
			Expect(metricsResp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(metricsResp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("receipt_extraction_success_total"))
		})
	})
})
