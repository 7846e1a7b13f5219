package tracker

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/carbonlens/carbonlens/internal/emission"
	"github.com/carbonlens/carbonlens/internal/recognition"
)

type submissionResponse struct {
	Breakdown emission.Breakdown `json:"breakdown"`
	Entry     *Entry             `json:"entry"`
}

var _ = ginkgo.Describe("Server", func() {
	var (
		db          *mockDB
		recognizer  *mockRecognizer
		storage     *mockStorage
		service     *Service
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	ginkgo.BeforeEach(func() {
		db = newMockDB()
		recognizer = newMockRecognizer()
		storage = newMockStorage()
		auth = BasicAuth{}
		service = NewServiceWithDeps(db, recognizer, storage, emission.DefaultFactors(),
			&mockIDGenerator{}, &mockTimeSource{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)})
		setupServer()
	})

	ginkgo.AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	ginkgo.Describe("handleHealth", func() {
		ginkgo.It("should report ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("handleSubmitEntries", func() {
		ginkgo.When("submitting a valid activity form", func() {
			var resp *http.Response

			ginkgo.JustBeforeEach(func() {
				var err error
				resp, err = http.Post(ghttpServer.URL()+"/api/users/42/entries",
					"application/x-www-form-urlencoded",
					strings.NewReader("electricity=10&car=5&unknownThing=3"))
				Expect(err).NotTo(HaveOccurred())
			})

			ginkgo.It("should return status Created", func() {
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			ginkgo.It("should return the breakdown in form-field order", func() {
				defer resp.Body.Close()
				var result submissionResponse
				Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
				Expect(result.Breakdown.Items).To(HaveLen(3))
				Expect(result.Breakdown.Items[0].Category).To(Equal("electricity"))
				Expect(result.Breakdown.Items[1].Category).To(Equal("car"))
				Expect(result.Breakdown.Items[2].Category).To(Equal("unknownThing"))
				Expect(result.Breakdown.TotalCO2).To(Equal(9.5))
			})

			ginkgo.It("should persist a daily entry for the user", func() {
				resp.Body.Close()
				Expect(db.entries).To(HaveLen(1))
				for _, entry := range db.entries {
					Expect(entry.UserID).To(Equal(42))
					Expect(entry.TotalCO2).To(Equal(9.5))
				}
			})
		})

		ginkgo.When("the user ID is not a number", func() {
			ginkgo.It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/users/someone/entries",
					"application/x-www-form-urlencoded", strings.NewReader("car=5"))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	ginkgo.Describe("handleListEntries", func() {
		ginkgo.BeforeEach(func() {
			db.entries["e1"] = &Entry{ID: "e1", UserID: 42, TotalCO2: 1.5}
			setupServer()
		})

		ginkgo.It("should return the user's entries as JSON", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/users/42/entries")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var entries []*Entry
			Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ID).To(Equal("e1"))
		})
	})

	ginkgo.Describe("handleUploadReceipt", func() {
		uploadReceipt := func(fieldName string) *http.Response {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile(fieldName, "receipt.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/users/42/receipts", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		ginkgo.When("recognition succeeds", func() {
			ginkgo.It("should return the recognized breakdown and the saved entry", func() {
				resp := uploadReceipt("file")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var result submissionResponse
				Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
				Expect(result.Breakdown.Items).To(HaveLen(2))
				Expect(result.Breakdown.TotalCO2).To(Equal(3.7))
				Expect(result.Entry.Source).To(Equal(SourceReceipt))
				Expect(db.entries).To(HaveLen(1))
			})
		})

		ginkgo.When("no file field is provided", func() {
			ginkgo.It("should return status Bad Request with a JSON error", func() {
				resp := uploadReceipt("wrong-field")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errResp map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
				Expect(errResp).To(HaveKey("error"))
			})
		})

		ginkgo.When("the recognizer fails", func() {
			ginkgo.BeforeEach(func() {
				recognizer.recognizeErr = &recognition.IngestionError{Reason: "recognition service unreachable"}
				setupServer()
			})

			ginkgo.It("should return status Bad Gateway and save nothing", func() {
				resp := uploadReceipt("file")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(db.entries).To(BeEmpty())
			})
		})
	})

	ginkgo.Describe("handleTrends", func() {
		ginkgo.BeforeEach(func() {
			date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
			db.entries["a"] = &Entry{ID: "a", UserID: 42, Date: date, TotalCO2: 2.0}
			db.entries["b"] = &Entry{ID: "b", UserID: 42, Date: date, TotalCO2: 3.0}
			db.entries["c"] = &Entry{ID: "c", UserID: 42, Date: date.AddDate(0, 0, -1), TotalCO2: 1.0}
			setupServer()
		})

		ginkgo.When("the resolution is valid", func() {
			ginkgo.It("should return summed buckets, newest first", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/users/42/trends/daily")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var buckets []TrendBucket
				Expect(json.NewDecoder(resp.Body).Decode(&buckets)).To(Succeed())
				Expect(buckets).To(HaveLen(2))
				Expect(buckets[0].Bucket).To(Equal("2025-03-14"))
				Expect(buckets[0].TotalCO2).To(Equal(5.0))
				Expect(buckets[1].TotalCO2).To(Equal(1.0))
			})
		})

		ginkgo.When("the resolution is invalid", func() {
			ginkgo.It("should return status Bad Request", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/users/42/trends/hourly")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		ginkgo.When("the user has no entries", func() {
			ginkgo.It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/users/7/trends/weekly")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})
	})

	ginkgo.Describe("basic auth", func() {
		ginkgo.BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		ginkgo.When("credentials are missing", func() {
			ginkgo.It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/users/42/entries")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		ginkgo.When("credentials are correct", func() {
			ginkgo.It("should serve the request", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/users/42/entries", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "pass")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		ginkgo.When("credentials are wrong", func() {
			ginkgo.It("should return status Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/users/42/entries", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("user", "wrong")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})
	})
})

var _ = ginkgo.Describe("parseOrderedForm", func() {
	ginkgo.It("should preserve field order", func() {
		inputs := parseOrderedForm("electricity=10&car=5&water=120")
		Expect(inputs).To(Equal([]emission.RawInput{
			{Category: "electricity", Value: "10"},
			{Category: "car", Value: "5"},
			{Category: "water", Value: "120"},
		}))
	})

	ginkgo.It("should unescape keys and values", func() {
		inputs := parseOrderedForm("long+drive=2.5&fuel%20type=3")
		Expect(inputs).To(Equal([]emission.RawInput{
			{Category: "long drive", Value: "2.5"},
			{Category: "fuel type", Value: "3"},
		}))
	})

	ginkgo.It("should keep fields with no value", func() {
		inputs := parseOrderedForm("electricity=&car=5")
		Expect(inputs).To(HaveLen(2))
		Expect(inputs[0].Value).To(Equal(""))
	})

	ginkgo.It("should skip empty pairs", func() {
		Expect(parseOrderedForm("")).To(BeEmpty())
		Expect(parseOrderedForm("&&car=5")).To(HaveLen(1))
	})
})
