package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/identity"
)

var _ = ginkgo.Describe("AuthMiddleware", func() {
	var (
		store   *mockPrincipalStore
		tokens  *JWTTokenGenerator
		service *Service
		handler *Handler
	)

	ginkgo.BeforeEach(func() {
		tokens = NewJWTTokenGenerator(
			"test-access-secret-at-least-32-chars!",
			"test-refresh-secret-at-least-32-char!",
		)

		hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-battery"), bcrypt.MinCost)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		p := &identity.Principal{
			ID:           42,
			Email:        "user@example.com",
			PasswordHash: string(hash),
			Role:         identity.RoleUser,
			IsActive:     true,
		}
		store = &mockPrincipalStore{
			byEmail: map[string]*identity.Principal{p.Email: p},
			byID:    map[int64]*identity.Principal{p.ID: p},
		}
		service = NewService(store, tokens)
		handler = NewHandler(service)
	})

	issueToken := func() string {
		token, err := tokens.GenerateAccessToken(42, "user@example.com", string(identity.RoleUser))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return token
	}

	ginkgo.It("should load the principal and user id into the request context", func() {
		var seenPrincipal *identity.Principal
		var seenUserID int64

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.PrincipalFromContext(r.Context())
			gomega.Expect(ok).To(gomega.BeTrue())
			seenPrincipal = p
			seenUserID = internal.UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken())
		rec := httptest.NewRecorder()

		handler.AuthMiddleware(next).ServeHTTP(rec, req)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(seenPrincipal).ToNot(gomega.BeNil())
		gomega.Expect(seenPrincipal.ID).To(gomega.Equal(int64(42)))
		gomega.Expect(seenUserID).To(gomega.Equal(int64(42)))
	})

	ginkgo.It("should reject a request without a bearer token", func() {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ginkgo.Fail("next handler must not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		rec := httptest.NewRecorder()

		handler.AuthMiddleware(next).ServeHTTP(rec, req)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
	})

	ginkgo.It("should reject an expired token", func() {
		expired := NewJWTTokenGenerator(
			"test-access-secret-at-least-32-chars!",
			"test-refresh-secret-at-least-32-char!",
		)
		expired.AccessTokenTTL = -time.Minute

		token, err := expired.GenerateAccessToken(42, "user@example.com", string(identity.RoleUser))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ginkgo.Fail("next handler must not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.AuthMiddleware(next).ServeHTTP(rec, req)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
	})

	ginkgo.It("should default the user id to zero on an unauthenticated context", func() {
		gomega.Expect(internal.UserIDFromContext(context.Background())).To(gomega.BeZero())
	})
})
