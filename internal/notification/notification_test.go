package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/testutil"
)

const instructorID = "00000000-0000-0000-0000-0000000000aa"

func seedStudents(t *testing.T, db *gorm.DB, n int) []models.User {
	t.Helper()
	inst := instructorID
	out := make([]models.User, n)
	for i := range out {
		out[i] = models.User{
			FullName:             fmt.Sprintf("Student %d", i),
			Email:                fmt.Sprintf("s%d@example.com", i),
			Role:                 models.RoleStudent,
			Active:               true,
			AssignedInstructorID: &inst,
		}
		if err := db.Create(&out[i]).Error; err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func seedTournament(t *testing.T, db *gorm.DB, regStart, examStart time.Time) models.Tournament {
	t.Helper()
	tr := models.Tournament{
		Title:             "Science Cup",
		InstructorID:      instructorID,
		Status:            models.TournamentUpcoming,
		RegistrationStart: regStart,
		RegistrationEnd:   examStart.Add(-time.Hour),
		ExamStart:         examStart,
		ExamEnd:           examStart.Add(time.Hour),
	}
	if err := db.Create(&tr).Error; err != nil {
		t.Fatal(err)
	}
	return tr
}

func register(t *testing.T, db *gorm.DB, tournamentID, studentID string) {
	t.Helper()
	if err := db.Create(&models.TournamentRegistration{TournamentID: tournamentID, StudentID: studentID}).Error; err != nil {
		t.Fatal(err)
	}
}

func typesFor(t *testing.T, db *gorm.DB, studentID string) map[models.NotificationType]models.Notification {
	t.Helper()
	var rows []models.Notification
	db.Where("student_id = ?", studentID).Find(&rows)
	out := map[models.NotificationType]models.Notification{}
	for _, r := range rows {
		out[r.Type] = r
	}
	return out
}

func TestPlanBeforeRegistrationTargetsAssignedStudents(t *testing.T) {
	db := testutil.OpenDB(t)
	now := testutil.Now()
	students := seedStudents(t, db, 2)
	regStart := now.Add(24 * time.Hour)
	examStart := now.Add(72 * time.Hour)
	tr := seedTournament(t, db, regStart, examStart)
	register(t, db, tr.ID, students[1].ID)

	s := NewScheduler(db, nil)
	s.SetClock(func() time.Time { return now })
	res, err := s.Plan(context.Background(), tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Recipients != 2 || res.Created != 9 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	got := typesFor(t, db, students[0].ID)
	if len(got) != 4 {
		t.Fatalf("unregistered student types = %v", got)
	}
	if _, ok := got[models.NotificationExam10Min]; ok {
		t.Fatal("unregistered student got EXAM_10MIN")
	}
	if !got[models.NotificationAnnouncement].ScheduledAt.Equal(regStart) {
		t.Fatalf("announcement at %v, want %v", got[models.NotificationAnnouncement].ScheduledAt, regStart)
	}
	if !got[models.NotificationReminder24h].ScheduledAt.Equal(examStart.Add(-24 * time.Hour)) {
		t.Fatal("24h reminder at wrong time")
	}
	if len(got[models.NotificationExamStart].Data) == 0 {
		t.Fatal("missing data payload")
	}

	reg := typesFor(t, db, students[1].ID)
	if _, ok := reg[models.NotificationExam10Min]; !ok || len(reg) != 5 {
		t.Fatalf("registered student types = %v", reg)
	}
}

func TestPlanAfterRegistrationSkipsPastReminders(t *testing.T) {
	db := testutil.OpenDB(t)
	now := testutil.Now()
	students := seedStudents(t, db, 3)
	tr := seedTournament(t, db, now.Add(-time.Hour), now.Add(30*time.Minute))
	register(t, db, tr.ID, students[0].ID)
	register(t, db, tr.ID, students[2].ID)

	s := NewScheduler(db, nil)
	s.SetClock(func() time.Time { return now })
	res, err := s.Plan(context.Background(), tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	// announcement, 10 minute warning and start for each registered student
	if res.Recipients != 2 || res.Created != 6 {
		t.Fatalf("result = %+v", res)
	}
	got := typesFor(t, db, students[0].ID)
	if _, ok := got[models.NotificationReminder1h]; ok {
		t.Fatal("1h reminder already in the past")
	}
	if !got[models.NotificationAnnouncement].ScheduledAt.Equal(now) {
		t.Fatal("announcement should be immediate once registration is open")
	}
	if len(typesFor(t, db, students[1].ID)) != 0 {
		t.Fatal("unregistered student notified after registration opened")
	}

	again, err := s.Plan(context.Background(), tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Created != 0 || again.Skipped != 6 {
		t.Fatalf("re-plan = %+v", again)
	}
}

func TestPlanUnknownTournament(t *testing.T) {
	s := NewScheduler(testutil.OpenDB(t), nil)
	if _, err := s.Plan(context.Background(), "nope"); !errors.Is(err, ErrTournamentNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := s.NotifyResultsPublished(context.Background(), "nope"); !errors.Is(err, ErrTournamentNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestResultsPublished(t *testing.T) {
	db := testutil.OpenDB(t)
	now := testutil.Now()
	students := seedStudents(t, db, 3)
	tr := seedTournament(t, db, now.Add(-48*time.Hour), now.Add(-2*time.Hour))
	register(t, db, tr.ID, students[0].ID)
	register(t, db, tr.ID, students[1].ID)

	s := NewScheduler(db, nil)
	res, err := s.ResultsPublished(context.Background(), tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 {
		t.Fatalf("result = %+v", res)
	}
	res, _ = s.ResultsPublished(context.Background(), tr.ID)
	if res.Created != 0 || res.Skipped != 2 {
		t.Fatalf("second call = %+v", res)
	}
}

type fakeInApp struct {
	mu   sync.Mutex
	sent map[string]int
}

func (f *fakeInApp) Deliver(userID string, n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]int{}
	}
	f.sent[userID]++
}

type failingEmail struct{}

func (failingEmail) Send(context.Context, Email) error { return errors.New("smtp down") }

type fakePush struct{ pushed int }

func (p *fakePush) Push(context.Context, string, models.Notification) error {
	p.pushed++
	return nil
}

func notification(t *testing.T, db *gorm.DB, studentID string, typ models.NotificationType, at time.Time, emailSent bool) models.Notification {
	t.Helper()
	n := models.Notification{
		TournamentID: "00000000-0000-0000-0000-0000000000bb",
		StudentID:    studentID,
		Type:         typ,
		Title:        string(typ),
		Message:      "hello",
		ScheduledAt:  at,
		EmailSent:    emailSent,
	}
	if err := db.Create(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestDispatchDeliversDueRowsOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	now := testutil.Now()
	students := seedStudents(t, db, 2)

	due := notification(t, db, students[0].ID, models.NotificationAnnouncement, now.Add(-time.Minute), false)
	alreadyEmailed := notification(t, db, students[1].ID, models.NotificationAnnouncement, now, true)
	future := notification(t, db, students[0].ID, models.NotificationExamStart, now.Add(time.Hour), false)

	inApp := &fakeInApp{}
	email := NewConsoleSender(From{Name: "EduTalks", Email: "noreply@example.com", AppName: "EduTalks"}, io.Discard)
	push := &fakePush{}
	d := NewDispatcher(db, inApp, email, 10, nil, WithPush(push), WithDispatchClock(func() time.Time { return now }))

	res, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 2 || res.InApp != 2 || res.Email != 1 || res.Push != 2 {
		t.Fatalf("result = %+v", res)
	}
	sent := email.Sent()
	if len(sent) != 1 || sent[0].ToEmail != students[0].Email {
		t.Fatalf("emails = %+v", sent)
	}

	reload := func(id uint) models.Notification {
		t.Helper()
		var n models.Notification
		if err := db.First(&n, id).Error; err != nil {
			t.Fatalf("reload %d: %v", id, err)
		}
		return n
	}
	if got := reload(due.ID); !got.InAppSent || !got.EmailSent || !got.PushSent || got.SentAt == nil {
		t.Fatalf("due row = %+v", got)
	}
	if got := reload(alreadyEmailed.ID); !got.InAppSent || !got.EmailSent || got.StudentID != students[1].ID {
		t.Fatalf("emailed row = %+v", got)
	}
	if got := reload(future.ID); got.InAppSent || got.SentAt != nil {
		t.Fatalf("future row dispatched early: %+v", got)
	}

	res, err = d.Dispatch(context.Background())
	if err != nil || res.Processed != 0 {
		t.Fatalf("second tick = %+v, %v", res, err)
	}
	if len(email.Sent()) != 1 {
		t.Fatal("email sent twice")
	}
}

func TestDispatchMarksRowsDespiteEmailFailure(t *testing.T) {
	db := testutil.OpenDB(t)
	now := testutil.Now()
	students := seedStudents(t, db, 1)
	n := notification(t, db, students[0].ID, models.NotificationExamStart, now, false)

	d := NewDispatcher(db, nil, failingEmail{}, 10, nil, WithDispatchClock(func() time.Time { return now }))
	res, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.EmailFailed != 1 {
		t.Fatalf("result = %+v", res)
	}
	var got models.Notification
	db.First(&got, n.ID)
	if !got.InAppSent || got.EmailSent || got.SentAt == nil || got.PushSent {
		t.Fatalf("row = %+v", got)
	}
}

func TestDispatchHonoursBatchSize(t *testing.T) {
	db := testutil.OpenDB(t)
	now := testutil.Now()
	students := seedStudents(t, db, 5)
	for i, s := range students {
		notification(t, db, s.ID, models.NotificationAnnouncement, now.Add(-time.Duration(i)*time.Minute), true)
	}
	d := NewDispatcher(db, nil, nil, 2, nil, WithDispatchClock(func() time.Time { return now }))
	total := 0
	for i := 0; i < 3; i++ {
		res, err := d.Dispatch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Processed > 2 {
			t.Fatalf("tick processed %d", res.Processed)
		}
		total += res.Processed
	}
	if total != 5 {
		t.Fatalf("total = %d", total)
	}
}

func TestSendgridSender(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody string
		status  int32 = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	s := NewSendgridSender("sg-key", From{Name: "EduTalks", Email: "noreply@example.com", AppName: "EduTalks"})
	s.host = srv.URL
	msg := Email{ToName: "Ana", ToEmail: "ana@example.com", Subject: "Hi", Text: "hello"}

	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v3/mail/send" || gotAuth != "Bearer sg-key" {
		t.Fatalf("path %q auth %q", gotPath, gotAuth)
	}
	if !strings.Contains(gotBody, "ana@example.com") || !strings.Contains(gotBody, "[EduTalks] Hi") {
		t.Fatalf("body = %s", gotBody)
	}

	atomic.StoreInt32(&status, http.StatusBadRequest)
	if err := s.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error on 400")
	}
	if err := s.Send(context.Background(), Email{}); err == nil {
		t.Fatal("expected error without recipient")
	}
}
