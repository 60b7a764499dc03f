package audits

import (
	"context"
	"testing"
	"time"

	"github.com/ardiwinata/qms-compliance/internal"
	"github.com/ardiwinata/qms-compliance/internal/eventlog"
	"github.com/ardiwinata/qms-compliance/internal/identity"
	"github.com/ardiwinata/qms-compliance/internal/permission"
	"github.com/ardiwinata/qms-compliance/pkg/logger"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestAudits(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Audits Module Suite")
}

// Mock audit repository with version checking
type mockAuditRepository struct {
	plans    map[string]*Plan
	findings map[string]*Finding
	rects    map[string]*Rectification
	entries  []*eventlog.Entry

	// raceOnFindingRead commits a competing write right after each finding
	// read, so the caller's version check is guaranteed stale.
	raceOnFindingRead bool
}

func newMockAuditRepository() *mockAuditRepository {
	return &mockAuditRepository{
		plans:    map[string]*Plan{},
		findings: map[string]*Finding{},
		rects:    map[string]*Rectification{},
	}
}

func copyPlan(p *Plan) *Plan {
	out := *p
	out.DocumentIDs = append([]string(nil), p.DocumentIDs...)
	return &out
}

func copyFinding(f *Finding) *Finding {
	out := *f
	return &out
}

func (m *mockAuditRepository) CreatePlan(ctx context.Context, plan *Plan, entries ...*eventlog.Entry) error {
	m.plans[plan.ID] = copyPlan(plan)
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockAuditRepository) GetPlan(ctx context.Context, id string) (*Plan, error) {
	if p, ok := m.plans[id]; ok {
		return copyPlan(p), nil
	}
	return nil, ErrPlanNotFound
}

func (m *mockAuditRepository) ListPlans(ctx context.Context, limit, offset int) ([]*Plan, error) {
	var out []*Plan
	for _, p := range m.plans {
		out = append(out, copyPlan(p))
	}
	return out, nil
}

func (m *mockAuditRepository) UpdatePlanWithVersion(ctx context.Context, plan *Plan, expectedVersion int64, entries ...*eventlog.Entry) error {
	stored, ok := m.plans[plan.ID]
	if !ok {
		return ErrPlanNotFound
	}
	if stored.Version != expectedVersion {
		return internal.ErrConcurrentModification
	}
	m.plans[plan.ID] = copyPlan(plan)
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockAuditRepository) CreateFinding(ctx context.Context, finding *Finding, plan *Plan, planVersion int64, entries ...*eventlog.Entry) error {
	m.findings[finding.ID] = copyFinding(finding)
	if plan.Version != planVersion {
		if err := m.savePlan(plan, planVersion); err != nil {
			return err
		}
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockAuditRepository) GetFinding(ctx context.Context, id string) (*Finding, error) {
	if f, ok := m.findings[id]; ok {
		out := copyFinding(f)
		if m.raceOnFindingRead {
			f.Version++
		}
		return out, nil
	}
	return nil, ErrFindingNotFound
}

func (m *mockAuditRepository) ListFindingsForPlan(ctx context.Context, planID string) ([]*Finding, error) {
	var out []*Finding
	for _, f := range m.findings {
		if f.PlanID == planID {
			out = append(out, copyFinding(f))
		}
	}
	return out, nil
}

func (m *mockAuditRepository) TransitionFinding(ctx context.Context, finding *Finding, expectedVersion int64, rect *Rectification, plan *Plan, planVersion int64, entries ...*eventlog.Entry) error {
	stored, ok := m.findings[finding.ID]
	if !ok {
		return ErrFindingNotFound
	}
	if stored.Version != expectedVersion {
		return internal.ErrConcurrentModification
	}
	m.findings[finding.ID] = copyFinding(finding)
	if rect != nil {
		cp := *rect
		m.rects[rect.ID] = &cp
	}
	if plan != nil && plan.Version != planVersion {
		if err := m.savePlan(plan, planVersion); err != nil {
			return err
		}
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockAuditRepository) ActiveRectification(ctx context.Context, findingID string) (*Rectification, error) {
	for _, r := range m.rects {
		if r.FindingID == findingID && r.IsActive() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRectificationNotPending
}

func (m *mockAuditRepository) ListRectifications(ctx context.Context, findingID string) ([]*Rectification, error) {
	var out []*Rectification
	for _, r := range m.rects {
		if r.FindingID == findingID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAuditRepository) savePlan(plan *Plan, expectedVersion int64) error {
	stored, ok := m.plans[plan.ID]
	if !ok {
		return ErrPlanNotFound
	}
	if stored.Version != expectedVersion {
		return internal.ErrConcurrentModification
	}
	m.plans[plan.ID] = copyPlan(plan)
	return nil
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
	p, ok := m.principals[id]
	if !ok || p.SuperiorID == nil {
		return nil, identity.ErrNoSuperior
	}
	return m.GetPrincipal(ctx, *p.SuperiorID)
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

type mockNotifier struct {
	calls []string
}

func (m *mockNotifier) Notify(principalID int64, eventKind string, payload map[string]any) {
	m.calls = append(m.calls, eventKind)
}

var _ = ginkgo.Describe("AuditService", func() {
	var (
		service  *Service
		repo     *mockAuditRepository
		notifier *mockNotifier
		ctx      context.Context

		auditor  *identity.Principal
		assignee *identity.Principal
		verifier *identity.Principal
	)

	strPtr := func(s string) *string { return &s }
	int64Ptr := func(v int64) *int64 { return &v }

	ginkgo.BeforeEach(func() {
		repo = newMockAuditRepository()
		notifier = &mockNotifier{}
		ctx = context.Background()

		auditor = &identity.Principal{ID: 10, Role: identity.RoleLeader, IsActive: true}
		assignee = &identity.Principal{ID: 11, Role: identity.RoleUser, IsActive: true}
		verifier = &identity.Principal{ID: 12, Role: identity.RoleLeader, IsActive: true}

		directory := &mockDirectory{principals: map[int64]*identity.Principal{
			10: auditor, 11: assignee, 12: verifier,
		}}

		perms := permission.NewService(&mockGrantRepository{}, permission.DefaultPolicyTable(), &mockSink{}, logger.L())
		service = NewService(repo, directory, perms, notifier, logger.L())
	})

	createPlan := func() *Plan {
		plan, err := service.CreatePlan(ctx, auditor.ID, CreatePlanDTO{
			Title:       "Q3 document control audit",
			Type:        PlanQuarterly,
			StartDate:   time.Now(),
			EndDate:     time.Now().Add(30 * 24 * time.Hour),
			AuditorID:   auditor.ID,
			DocumentIDs: []string{"doc_1", "doc_2"},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return plan
	}

	startedPlan := func() *Plan {
		plan := createPlan()
		started, err := service.StartExecution(ctx, auditor.ID, plan.ID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return started
	}

	nonCompliantDTO := func(planID string) RecordFindingDTO {
		return RecordFindingDTO{
			PlanID:      planID,
			DocumentID:  "doc_1",
			AuditResult: ResultNonCompliant,
			IssueType:   strPtr("outdated_reference"),
			Description: strPtr("procedure references a withdrawn standard"),
			Department:  strPtr("quality"),
			AssigneeID:  int64Ptr(assignee.ID),
		}
	}

	openFinding := func(planID string) *Finding {
		finding, err := service.RecordFinding(ctx, auditor.ID, nonCompliantDTO(planID))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return finding
	}

	lastEntry := func(action string) *eventlog.Entry {
		for i := len(repo.entries) - 1; i >= 0; i-- {
			if repo.entries[i].Action == action {
				return repo.entries[i]
			}
		}
		return nil
	}

	submitRect := func(findingID string) *Finding {
		finding, err := service.SubmitRectification(ctx, assignee.ID, SubmitRectificationDTO{
			FindingID:  findingID,
			DocumentID: "doc_1",
			DocVersion: 2,
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return finding
	}

	ginkgo.Describe("CreatePlan", func() {
		ginkgo.It("should create the plan in draft", func() {
			plan := createPlan()
			gomega.Expect(plan.Status).To(gomega.Equal(PlanDraft))
			gomega.Expect(plan.Version).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("should reject an end date before the start date", func() {
			_, err := service.CreatePlan(ctx, auditor.ID, CreatePlanDTO{
				Title:       "backwards window",
				Type:        PlanAnnual,
				StartDate:   time.Now(),
				EndDate:     time.Now().Add(-time.Hour),
				AuditorID:   auditor.ID,
				DocumentIDs: []string{"doc_1"},
			})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("StartExecution", func() {
		ginkgo.It("should move a draft plan to ongoing", func() {
			plan := startedPlan()
			gomega.Expect(plan.Status).To(gomega.Equal(PlanOngoing))
		})

		ginkgo.It("should refuse to start twice", func() {
			plan := startedPlan()
			_, err := service.StartExecution(ctx, auditor.ID, plan.ID)
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidPlanTransition))
		})
	})

	ginkgo.Describe("RecordFinding", func() {
		ginkgo.It("should refuse findings against a draft plan", func() {
			plan := createPlan()
			dto := nonCompliantDTO(plan.ID)
			_, err := service.RecordFinding(ctx, auditor.ID, dto)
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidPlanTransition))
		})

		ginkgo.It("should close a compliant finding immediately and leave the plan ongoing", func() {
			plan := startedPlan()
			finding, err := service.RecordFinding(ctx, auditor.ID, RecordFindingDTO{
				PlanID:      plan.ID,
				DocumentID:  "doc_1",
				AuditResult: ResultCompliant,
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(finding.Status).To(gomega.Equal(FindingClosed))

			stored, err := service.GetPlan(ctx, plan.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(PlanOngoing))
		})

		ginkgo.It("should fail a non-compliant finding without an assignee", func() {
			plan := startedPlan()
			dto := nonCompliantDTO(plan.ID)
			dto.AssigneeID = nil
			_, err := service.RecordFinding(ctx, auditor.ID, dto)
			gomega.Expect(err).To(gomega.MatchError(ErrIncompleteNonCompliance))
		})

		ginkgo.It("should fail a non-compliant finding with a short description", func() {
			plan := startedPlan()
			dto := nonCompliantDTO(plan.ID)
			dto.Description = strPtr("bad doc")
			_, err := service.RecordFinding(ctx, auditor.ID, dto)
			gomega.Expect(err).To(gomega.MatchError(ErrIncompleteNonCompliance))
		})

		ginkgo.It("should open a complete non-compliant finding and move the plan to pending_rectification", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			gomega.Expect(finding.Status).To(gomega.Equal(FindingOpen))

			stored, err := service.GetPlan(ctx, plan.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(PlanPendingRectification))
		})

		ginkgo.It("should notify the assignee", func() {
			plan := startedPlan()
			openFinding(plan.ID)
			gomega.Expect(notifier.calls).To(gomega.ContainElement("audit.finding_assigned"))
		})
	})

	ginkgo.Describe("SubmitRectification", func() {
		ginkgo.It("should move an open finding to rectification_submitted", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)

			updated := submitRect(finding.ID)
			gomega.Expect(updated.Status).To(gomega.Equal(FindingRectificationSubmitted))

			rects, err := service.ListRectifications(ctx, finding.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rects).To(gomega.HaveLen(1))
		})

		ginkgo.It("should refuse a closed finding", func() {
			plan := startedPlan()
			finding, err := service.RecordFinding(ctx, auditor.ID, RecordFindingDTO{
				PlanID:      plan.ID,
				DocumentID:  "doc_1",
				AuditResult: ResultCompliant,
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.SubmitRectification(ctx, assignee.ID, SubmitRectificationDTO{
				FindingID:  finding.ID,
				DocumentID: "doc_1",
				DocVersion: 2,
			})
			gomega.Expect(err).To(gomega.MatchError(ErrFindingNotOpen))
		})

		ginkgo.It("should refuse a finding already under review", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			submitRect(finding.ID)

			_, err := service.SubmitRectification(ctx, assignee.ID, SubmitRectificationDTO{
				FindingID:  finding.ID,
				DocumentID: "doc_1",
				DocVersion: 3,
			})
			gomega.Expect(err).To(gomega.MatchError(ErrFindingNotOpen))
		})
	})

	ginkgo.Describe("Verify", func() {
		ginkgo.It("should close the finding in one call and complete the plan", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			submitRect(finding.ID)

			closed, err := service.Verify(ctx, verifier.ID, finding.ID, nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(closed.Status).To(gomega.Equal(FindingClosed))

			rects, err := service.ListRectifications(ctx, finding.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rects[0].VerifiedAt).ToNot(gomega.BeNil())

			storedPlan, err := service.GetPlan(ctx, plan.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(storedPlan.Status).To(gomega.Equal(PlanCompleted))
		})

		ginkgo.It("should keep the submitter's comment and log the verifier's note", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)

			_, err := service.SubmitRectification(ctx, assignee.ID, SubmitRectificationDTO{
				FindingID:  finding.ID,
				DocumentID: "doc_1",
				DocVersion: 2,
				Comment:    strPtr("replaced the withdrawn standard reference"),
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.Verify(ctx, verifier.ID, finding.ID, strPtr("checked against the new revision"))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			rects, err := service.ListRectifications(ctx, finding.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rects[0].Comment).ToNot(gomega.BeNil())
			gomega.Expect(*rects[0].Comment).To(gomega.Equal("replaced the withdrawn standard reference"))

			verifyEntry := lastEntry("audit.rectification_verify")
			gomega.Expect(verifyEntry).ToNot(gomega.BeNil())
			gomega.Expect(verifyEntry.Detail).To(gomega.ContainSubstring("checked against the new revision"))
		})

		ginkgo.It("should record the pass-through verified step in the log entry", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			submitRect(finding.ID)

			_, err := service.Verify(ctx, verifier.ID, finding.ID, nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			verifyEntry := lastEntry("audit.rectification_verify")
			gomega.Expect(verifyEntry).ToNot(gomega.BeNil())
			gomega.Expect(verifyEntry.Detail).To(gomega.ContainSubstring(string(FindingVerified)))
		})

		ginkgo.It("should refuse the assignee as verifier", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			submitRect(finding.ID)

			_, err := service.Verify(ctx, assignee.ID, finding.ID, nil)
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(internal.ErrCodePermissionDenied))
		})

		ginkgo.It("should refuse a finding with no pending rectification", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)

			_, err := service.Verify(ctx, verifier.ID, finding.ID, nil)
			gomega.Expect(err).To(gomega.MatchError(ErrRectificationNotPending))
		})
	})

	ginkgo.Describe("Reject", func() {
		ginkgo.It("should require a reason of at least 10 characters without mutating state", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			submitRect(finding.ID)

			_, err := service.Reject(ctx, verifier.ID, finding.ID, RejectRectificationDTO{RejectionReason: "nope"})
			gomega.Expect(err).To(gomega.HaveOccurred())

			stored, err := service.GetFinding(ctx, finding.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(FindingRectificationSubmitted))
		})

		ginkgo.It("should reopen the finding for resubmission and preserve history", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)
			submitRect(finding.ID)

			rejected, err := service.Reject(ctx, verifier.ID, finding.ID, RejectRectificationDTO{
				RejectionReason: "document version still references the old form",
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rejected.Status).To(gomega.Equal(FindingRejected))

			// The plan never reverts to ongoing once rectification began.
			storedPlan, err := service.GetPlan(ctx, plan.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(storedPlan.Status).To(gomega.Equal(PlanPendingRectification))

			submitRect(finding.ID)
			rects, err := service.ListRectifications(ctx, finding.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rects).To(gomega.HaveLen(2))
		})
	})

	ginkgo.Describe("CompleteExecution", func() {
		ginkgo.It("should complete an ongoing plan whose findings are all compliant", func() {
			plan := startedPlan()
			_, err := service.RecordFinding(ctx, auditor.ID, RecordFindingDTO{
				PlanID:      plan.ID,
				DocumentID:  "doc_1",
				AuditResult: ResultCompliant,
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			completed, err := service.CompleteExecution(ctx, auditor.ID, plan.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(completed.Status).To(gomega.Equal(PlanCompleted))
		})

		ginkgo.It("should refuse while findings remain unresolved", func() {
			plan := startedPlan()
			openFinding(plan.ID)

			_, err := service.CompleteExecution(ctx, auditor.ID, plan.ID)
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidPlanTransition))
		})
	})

	ginkgo.Context("under concurrent modification", func() {
		ginkgo.It("should fail the losing transition with ConcurrentModification", func() {
			plan := startedPlan()
			finding := openFinding(plan.ID)

			repo.raceOnFindingRead = true

			_, err := service.SubmitRectification(ctx, assignee.ID, SubmitRectificationDTO{
				FindingID:  finding.ID,
				DocumentID: "doc_1",
				DocVersion: 2,
			})
			gomega.Expect(err).To(gomega.MatchError(internal.ErrConcurrentModification))
		})
	})
})
