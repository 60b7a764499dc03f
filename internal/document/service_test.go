package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/approval"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/ardiwinata/qms-compliance/pkg/logger"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestDocument(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Document Module Suite")
}

// Mock document repository
type mockDocumentRepository struct {
	docs    map[string]*Document
	deleted map[string]time.Time
	entries []*eventlog.Entry
}

func newMockDocumentRepository() *mockDocumentRepository {
	return &mockDocumentRepository{
		docs:    map[string]*Document{},
		deleted: map[string]time.Time{},
	}
}

func (m *mockDocumentRepository) Create(ctx context.Context, doc *Document, entries ...*eventlog.Entry) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockDocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	if _, gone := m.deleted[id]; gone {
		return nil, ErrDocumentNotFound
	}
	if d, ok := m.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, ErrDocumentNotFound
}

func (m *mockDocumentRepository) List(ctx context.Context, limit, offset int) ([]*Document, error) {
	var out []*Document
	for id, d := range m.docs {
		if _, gone := m.deleted[id]; gone {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockDocumentRepository) UpdateWithVersion(ctx context.Context, doc *Document, expectedVersion int64, entries ...*eventlog.Entry) error {
	stored, ok := m.docs[doc.ID]
	if !ok {
		return ErrDocumentNotFound
	}
	if stored.Version != expectedVersion {
		return internal.ErrConcurrentModification
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockDocumentRepository) SoftDelete(ctx context.Context, id string, entries ...*eventlog.Entry) error {
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	m.deleted[id] = time.Now()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockDocumentRepository) PurgeSoftDeleted(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	for id, at := range m.deleted {
		if at.Before(before) {
			delete(m.deleted, id)
			delete(m.docs, id)
			purged++
		}
	}
	return purged, nil
}

// Mock identity directory
type mockDirectory struct {
	principals map[int64]*identity.Principal
}

func (m *mockDirectory) GetPrincipal(ctx context.Context, id int64) (*identity.Principal, error) {
	if p, ok := m.principals[id]; ok {
		return p, nil
	}
	return nil, identity.ErrPrincipalNotFound
}

func (m *mockDirectory) SuperiorOf(ctx context.Context, id int64) (*identity.Principal, error) {
	return nil, identity.ErrNoSuperior
}

// Mock approval chain submitter
type mockChainSubmitter struct {
	submitted []approval.SubmitChainDTO
	fail      bool
}

func (m *mockChainSubmitter) Submit(ctx context.Context, creatorID int64, dto approval.SubmitChainDTO) (*approval.Chain, error) {
	if m.fail {
		return nil, errors.New("chain submission failed")
	}
	m.submitted = append(m.submitted, dto)
	return &approval.Chain{ID: "chain_1", RecordID: dto.RecordID, RecordType: dto.RecordType}, nil
}

// Mock grant repository backing the permission engine
type mockGrantRepository struct{}

func (m *mockGrantRepository) Create(ctx context.Context, grant *permission.Grant) error { return nil }
func (m *mockGrantRepository) GetByID(ctx context.Context, id string) (*permission.Grant, error) {
	return nil, permission.ErrGrantNotFound
}
func (m *mockGrantRepository) ListActiveForUser(ctx context.Context, userID int64) ([]*permission.Grant, error) {
	return nil, nil
}
func (m *mockGrantRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*permission.Grant, error) {
	return nil, nil
}
func (m *mockGrantRepository) Revoke(ctx context.Context, id string, by int64, at time.Time) error {
	return nil
}

type mockSink struct{}

func (m *mockSink) Append(ctx context.Context, entry *eventlog.Entry) error { return nil }

var _ = ginkgo.Describe("DocumentService", func() {
	var (
		service *Service
		repo    *mockDocumentRepository
		chains  *mockChainSubmitter
		ctx     context.Context

		author *identity.Principal
		leader *identity.Principal
		other  *identity.Principal
	)

	ginkgo.BeforeEach(func() {
		repo = newMockDocumentRepository()
		chains = &mockChainSubmitter{}
		ctx = context.Background()

		author = &identity.Principal{ID: 1, Role: identity.RoleUser, IsActive: true}
		leader = &identity.Principal{ID: 2, Role: identity.RoleLeader, IsActive: true}
		other = &identity.Principal{ID: 3, Role: identity.RoleUser, IsActive: true}

		directory := &mockDirectory{principals: map[int64]*identity.Principal{
			1: author, 2: leader, 3: other,
		}}

		perms := permission.NewService(&mockGrantRepository{}, permission.DefaultPolicyTable(), &mockSink{}, logger.L())
		service = NewService(repo, directory, perms, chains, logger.L())
	})

	createDraft := func() *Document {
		doc, err := service.Create(ctx, author.ID, CreateDocumentDTO{
			Number:   "QP-001",
			Title:    "Document Control Procedure",
			Category: "procedure",
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return doc
	}

	submitted := func() *Document {
		doc := createDraft()
		updated, err := service.SubmitForApproval(ctx, author.ID, SubmitForApprovalDTO{
			DocumentID:  doc.ID,
			ApproverIDs: []int64{leader.ID},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return updated
	}

	effective := func() *Document {
		doc := submitted()
		err := service.OnApproved(ctx, RecordType, doc.ID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		stored, err := service.GetByID(ctx, doc.ID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return stored
	}

	ginkgo.Describe("Create", func() {
		ginkgo.It("should create a draft", func() {
			doc := createDraft()
			gomega.Expect(doc.Status).To(gomega.Equal(StatusDraft))
			gomega.Expect(doc.DocVersion).To(gomega.Equal(1))
		})

		ginkgo.It("should reject a blank number", func() {
			_, err := service.Create(ctx, author.ID, CreateDocumentDTO{Title: "no number", Category: "procedure"})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("SubmitForApproval", func() {
		ginkgo.It("should move the draft to pending_approval and spawn a chain", func() {
			doc := submitted()
			gomega.Expect(doc.Status).To(gomega.Equal(StatusPendingApproval))
			gomega.Expect(chains.submitted).To(gomega.HaveLen(1))
			gomega.Expect(chains.submitted[0].RecordID).To(gomega.Equal(doc.ID))
			gomega.Expect(chains.submitted[0].RecordType).To(gomega.Equal(RecordType))
		})

		ginkgo.It("should refuse a document already under review", func() {
			doc := submitted()
			_, err := service.SubmitForApproval(ctx, author.ID, SubmitForApprovalDTO{
				DocumentID:  doc.ID,
				ApproverIDs: []int64{leader.ID},
			})
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidDocumentStatus))
		})

		ginkgo.It("should revert to draft when the chain submission fails", func() {
			doc := createDraft()
			chains.fail = true

			_, err := service.SubmitForApproval(ctx, author.ID, SubmitForApprovalDTO{
				DocumentID:  doc.ID,
				ApproverIDs: []int64{leader.ID},
			})
			gomega.Expect(err).To(gomega.HaveOccurred())

			stored, err := service.GetByID(ctx, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(StatusDraft))
		})
	})

	ginkgo.Describe("approval chain outcomes", func() {
		ginkgo.It("should make the document effective on approval", func() {
			doc := effective()
			gomega.Expect(doc.Status).To(gomega.Equal(StatusEffective))
		})

		ginkgo.It("should return the document to draft on rejection", func() {
			doc := submitted()
			err := service.OnRejected(ctx, RecordType, doc.ID, "references the withdrawn form")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			stored, err := service.GetByID(ctx, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(StatusDraft))
		})

		ginkgo.It("should return the document to draft on cancellation", func() {
			doc := submitted()
			err := service.OnCancelled(ctx, RecordType, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			stored, err := service.GetByID(ctx, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(StatusDraft))
		})

		ginkgo.It("should ignore callbacks for other record types", func() {
			err := service.OnApproved(ctx, "audit_plan", "not_a_document")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("Archive and MarkObsolete", func() {
		ginkgo.It("should archive an effective document", func() {
			doc := effective()
			archived, err := service.Archive(ctx, leader.ID, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(archived.Status).To(gomega.Equal(StatusArchived))
		})

		ginkgo.It("should refuse archiving a draft", func() {
			doc := createDraft()
			_, err := service.Archive(ctx, leader.ID, doc.ID)
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidDocumentStatus))
		})

		ginkgo.It("should obsolete an archived document", func() {
			doc := effective()
			_, err := service.Archive(ctx, leader.ID, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			obsoleted, err := service.MarkObsolete(ctx, leader.ID, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(obsoleted.Status).To(gomega.Equal(StatusObsolete))
		})

		ginkgo.It("should deny archive to a plain user role", func() {
			doc := effective()
			_, err := service.Archive(ctx, author.ID, doc.ID)
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(internal.ErrCodePermissionDenied))
		})
	})

	ginkgo.Describe("Delete and purge", func() {
		ginkgo.It("should let the creator soft delete a draft", func() {
			doc := createDraft()
			err := service.Delete(ctx, author.ID, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.GetByID(ctx, doc.ID)
			gomega.Expect(err).To(gomega.MatchError(ErrDocumentNotFound))
		})

		ginkgo.It("should deny deletion by anyone else", func() {
			doc := createDraft()
			err := service.Delete(ctx, other.ID, doc.ID)
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(internal.ErrCodePermissionDenied))
		})

		ginkgo.It("should refuse deleting a non-draft document", func() {
			doc := effective()
			err := service.Delete(ctx, author.ID, doc.ID)
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidDocumentStatus))
		})

		ginkgo.It("should purge only soft deletes older than the cutoff, idempotently", func() {
			doc := createDraft()
			err := service.Delete(ctx, author.ID, doc.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			purged, err := service.PurgeExpiredSoftDeletes(ctx, time.Now().Add(-time.Hour))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(purged).To(gomega.Equal(int64(0)))

			purged, err = service.PurgeExpiredSoftDeletes(ctx, time.Now().Add(time.Hour))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(purged).To(gomega.Equal(int64(1)))

			purged, err = service.PurgeExpiredSoftDeletes(ctx, time.Now().Add(time.Hour))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(purged).To(gomega.Equal(int64(0)))
		})
	})
})
