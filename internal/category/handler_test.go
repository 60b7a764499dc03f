package category_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/ardiwinata/qms-compliance/internal/category"
	categoryPostgres "github.com/ardiwinata/qms-compliance/internal/category/postgres"
	categoryDatamodel "github.com/ardiwinata/qms-compliance/internal/core/datamodel/category"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("Category Handler Integration", func() {
	var (
		db      *gorm.DB
		repo    category.RepositoryAPI
		service *category.Service
		handler *category.Handler
	)

	admin := &identity.Principal{ID: 1, Email: "admin@qms.local", Role: identity.RoleAdmin, IsActive: true}
	author := &identity.Principal{ID: 2, Email: "author@qms.local", Role: identity.RoleUser, IsActive: true}

	BeforeEach(func() {
		var err error
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&categoryDatamodel.DocumentCategory{})
		Expect(err).NotTo(HaveOccurred())

		repo = categoryPostgres.NewCategoryRepository(db)
		service = category.NewService(repo, slogger)
		handler = category.NewHandler(transport.NewBaseHandler(slogger), service)

		seed := []*categoryDatamodel.DocumentCategory{
			{Name: "procedure", Description: "Quality procedures", IsActive: true},
			{Name: "work_instruction", Description: "Work instructions", IsActive: true},
			{Name: "retired", Description: "No longer used", IsActive: false},
		}
		for _, cat := range seed {
			Expect(repo.Create(cat)).To(Succeed())
		}
	})

	Describe("GetCategories", func() {
		It("should list only active categories", func() {
			req := httptest.NewRequest(http.MethodGet, "/categories", nil)
			rec := httptest.NewRecorder()

			handler.GetCategories(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var body category.CategoriesResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Categories).To(HaveLen(2))
		})
	})

	Describe("CreateCategory", func() {
		It("should allow an administrator to add a category", func() {
			req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"form","description":"Forms"}`))
			req = req.WithContext(identity.ContextWithPrincipal(req.Context(), admin))
			rec := httptest.NewRecorder()

			handler.CreateCategory(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(service.IsValidCategory("form")).To(BeTrue())
		})

		It("should refuse a non administrator", func() {
			req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"form"}`))
			req = req.WithContext(identity.ContextWithPrincipal(req.Context(), author))
			rec := httptest.NewRecorder()

			handler.CreateCategory(rec, req)

			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("should reject a duplicate name with conflict", func() {
			req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"procedure"}`))
			req = req.WithContext(identity.ContextWithPrincipal(req.Context(), admin))
			rec := httptest.NewRecorder()

			handler.CreateCategory(rec, req)

			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should require authentication", func() {
			req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"form"}`))
			rec := httptest.NewRecorder()

			handler.CreateCategory(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
