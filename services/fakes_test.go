package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"redminetogithub/api"
	"redminetogithub/models"
)

// fakeLookup はマップから名前を解決します。errs に登録したIDは一時的なエラーを返します
type fakeLookup struct {
	users, versions, statuses, priorities, trackers, customFields map[int]string
	errs                                                          map[int]error
}

func find(m map[int]string, errs map[int]error, id int) (string, error) {
	if err, ok := errs[id]; ok {
		return "", err
	}
	if name, ok := m[id]; ok {
		return name, nil
	}
	return "", fmt.Errorf("id %d: %w", id, api.ErrNotFound)
}

func (f *fakeLookup) UserName(_ context.Context, id int) (string, error) {
	return find(f.users, f.errs, id)
}
func (f *fakeLookup) VersionName(_ context.Context, id int) (string, error) {
	return find(f.versions, f.errs, id)
}
func (f *fakeLookup) StatusName(_ context.Context, id int) (string, error) {
	return find(f.statuses, f.errs, id)
}
func (f *fakeLookup) PriorityName(_ context.Context, id int) (string, error) {
	return find(f.priorities, f.errs, id)
}
func (f *fakeLookup) TrackerName(_ context.Context, id int) (string, error) {
	return find(f.trackers, f.errs, id)
}
func (f *fakeLookup) CustomFieldName(_ context.Context, id int) (string, error) {
	return find(f.customFields, f.errs, id)
}

// fakeStorage は書き込まれたキーを記録します
type fakeStorage struct {
	puts  []string
	types map[string]string
}

func (s *fakeStorage) PutObject(_ context.Context, key string, _ []byte, contentType string) error {
	s.puts = append(s.puts, key)
	if s.types == nil {
		s.types = make(map[string]string)
	}
	s.types[key] = contentType
	return nil
}

func (s *fakeStorage) PublicURL(key string) string {
	return "https://files.example.com/" + key
}

// fakeSource はメモリ上のRedmineです
type fakeSource struct {
	issues    map[int]*models.SourceIssue
	versions  []models.Version
	notes     map[int][]string
	downloads int
	calls     []string
}

func newFakeSource(issues ...*models.SourceIssue) *fakeSource {
	s := &fakeSource{issues: make(map[int]*models.SourceIssue), notes: make(map[int][]string)}
	for _, issue := range issues {
		s.issues[issue.ID] = issue
	}
	return s
}

func (s *fakeSource) IssueURL(id int) string {
	return fmt.Sprintf("https://redmine.example.com/issues/%d", id)
}

func (s *fakeSource) ListIssueIDs(_ context.Context, _ string) ([]int, error) {
	ids := make([]int, 0, len(s.issues))
	for id := range s.issues {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *fakeSource) GetIssue(_ context.Context, id int) (*models.SourceIssue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return issue, nil
}

func (s *fakeSource) ListVersions(_ context.Context) ([]models.Version, error) {
	return s.versions, nil
}

func (s *fakeSource) AddNote(_ context.Context, id int, note string) error {
	s.calls = append(s.calls, fmt.Sprintf("note %d", id))
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func (s *fakeSource) DownloadAttachment(_ context.Context, a models.Attachment) ([]byte, error) {
	s.downloads++
	return []byte(a.Filename), nil
}

// fakeTarget はメモリ上のGitHubです。インポートは即座に完了します
type fakeTarget struct {
	milestones []models.Milestone
	labels     []string
	imports    []*models.TargetIssuePayload
	comments   map[int][]string
	closed     map[int]bool
	calls      []string
	nextNumber int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{comments: make(map[int][]string), closed: make(map[int]bool), nextNumber: 1}
}

func (t *fakeTarget) SubmitImport(_ context.Context, payload *models.TargetIssuePayload) (models.ImportJob, error) {
	t.imports = append(t.imports, payload)
	return models.ImportJob{ID: len(t.imports), URL: fmt.Sprintf("job/%d", len(t.imports))}, nil
}

func (t *fakeTarget) ImportStatus(_ context.Context, job models.ImportJob) (models.ImportResult, error) {
	number := t.nextNumber
	t.nextNumber++
	t.calls = append(t.calls, fmt.Sprintf("import #%d", number))
	return models.ImportResult{
		Status:   models.ImportImported,
		IssueURL: fmt.Sprintf("https://api.github.com/repos/acme/widgets/issues/%d", number),
	}, nil
}

func (t *fakeTarget) ListMilestones(_ context.Context) ([]models.Milestone, error) {
	return append([]models.Milestone(nil), t.milestones...), nil
}

func (t *fakeTarget) CreateMilestone(_ context.Context, title, state, _ string, dueOn *time.Time) (models.Milestone, error) {
	m := models.Milestone{Number: len(t.milestones) + 100, Title: title, State: state}
	t.milestones = append(t.milestones, m)
	t.calls = append(t.calls, "create milestone "+title)
	return m, nil
}

func (t *fakeTarget) DeleteMilestone(_ context.Context, number int) error {
	for i, m := range t.milestones {
		if m.Number == number {
			t.milestones = append(t.milestones[:i], t.milestones[i+1:]...)
			break
		}
	}
	t.calls = append(t.calls, fmt.Sprintf("delete milestone %d", number))
	return nil
}

func (t *fakeTarget) ListLabels(_ context.Context) ([]string, error) {
	return t.labels, nil
}

func (t *fakeTarget) DeleteLabel(_ context.Context, name string) error {
	t.calls = append(t.calls, "delete label "+name)
	return nil
}

func (t *fakeTarget) CreateComment(_ context.Context, number int, body string) error {
	t.calls = append(t.calls, fmt.Sprintf("comment #%d", number))
	t.comments[number] = append(t.comments[number], body)
	return nil
}

func (t *fakeTarget) CloseIssue(_ context.Context, number int) error {
	t.calls = append(t.calls, fmt.Sprintf("close #%d", number))
	t.closed[number] = true
	return nil
}

func (t *fakeTarget) IssueHTMLURL(_ context.Context, number int) (string, error) {
	return fmt.Sprintf("https://github.com/acme/widgets/issues/%d", number), nil
}

func (t *fakeTarget) ListIssues(_ context.Context) ([]models.TargetIssue, error) {
	var issues []models.TargetIssue
	for i, p := range t.imports {
		issues = append(issues, models.TargetIssue{
			Number:  i + 1,
			Title:   p.Issue.Title,
			HTMLURL: fmt.Sprintf("https://github.com/acme/widgets/issues/%d", i+1),
		})
	}
	return issues, nil
}

// callLogLedger は記録の呼び出しを呼び出し順のログに追加します
type callLogLedger struct {
	Ledger
	calls *[]string
}

func (l *callLogLedger) Record(ctx context.Context, id int) error {
	*l.calls = append(*l.calls, fmt.Sprintf("record %d", id))
	return l.Ledger.Record(ctx, id)
}

func strPtr(s string) *string {
	return &s
}
