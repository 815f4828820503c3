package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/batch"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/testutil"
)

type fixture struct {
	db      *gorm.DB
	subject models.Subject
	inst    models.User
	seq     int
	base    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	f := &fixture{db: db, base: testutil.Now().Add(-time.Hour)}
	f.subject = models.Subject{Name: "Physics", Grade: "10"}
	if err := db.Create(&f.subject).Error; err != nil {
		t.Fatal(err)
	}
	f.inst = f.user(t, models.RoleInstructor, "")
	return f
}

func (f *fixture) user(t *testing.T, role models.Role, grade string) models.User {
	t.Helper()
	f.seq++
	u := models.User{
		FullName:  fmt.Sprintf("user %d", f.seq),
		Email:     fmt.Sprintf("u%d@example.com", f.seq),
		Role:      role,
		Grade:     grade,
		Active:    true,
		CreatedAt: f.base.Add(time.Duration(f.seq) * time.Second),
	}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) batch(t *testing.T, capacity, count int) models.Batch {
	t.Helper()
	f.seq++
	b := models.Batch{
		SubjectID:    f.subject.ID,
		InstructorID: f.inst.ID,
		Name:         fmt.Sprintf("b%d", f.seq),
		Capacity:     capacity,
		CurrentCount: count,
		Active:       true,
		CreatedAt:    f.base.Add(time.Duration(f.seq) * time.Second),
	}
	if err := f.db.Create(&b).Error; err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *fixture) count(t *testing.T, id string) int {
	t.Helper()
	var b models.Batch
	if err := f.db.First(&b, "id = ?", id).Error; err != nil {
		t.Fatal(err)
	}
	return b.CurrentCount
}

func (f *fixture) checkInvariants(t *testing.T) {
	t.Helper()
	var batches []models.Batch
	f.db.Find(&batches)
	for _, b := range batches {
		if b.CurrentCount > b.Capacity {
			t.Errorf("batch %s count %d > capacity %d", b.ID, b.CurrentCount, b.Capacity)
		}
	}
	type row struct {
		StudentID string
		SubjectID string
		N         int
	}
	var dups []row
	f.db.Model(&models.BatchAssignment{}).
		Select("student_id, subject_id, COUNT(*) AS n").
		Group("student_id, subject_id").
		Having("COUNT(*) > 1").
		Scan(&dups)
	if len(dups) > 0 {
		t.Errorf("students assigned twice for one subject: %+v", dups)
	}
}

func TestAllocateUsesOldestOpenBatch(t *testing.T) {
	f := newFixture(t)
	older := f.batch(t, 3, 1)
	f.batch(t, 3, 0)
	s := f.user(t, models.RoleStudent, "10")

	a := batch.NewAllocator(f.db, 30, nil)
	out, err := a.AllocateStudentToBatches(context.Background(), s.ID, "10")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Err != nil || out[0].BatchID != older.ID || out[0].NewBatch {
		t.Fatalf("allocation = %+v", out)
	}
	if got := f.count(t, older.ID); got != 2 {
		t.Fatalf("count = %d", got)
	}

	again, _ := a.AllocateStudentToBatches(context.Background(), s.ID, "10")
	if !again[0].Existing || again[0].BatchID != older.ID {
		t.Fatalf("repeat allocation = %+v", again)
	}
	if got := f.count(t, older.ID); got != 2 {
		t.Fatalf("repeat allocation changed count to %d", got)
	}
}

func TestAllocateFullBatchOpensNewOne(t *testing.T) {
	f := newFixture(t)
	full := f.batch(t, 2, 2)
	s := f.user(t, models.RoleStudent, "10")

	a := batch.NewAllocator(f.db, 30, nil)
	out, err := a.AllocateStudentToBatches(context.Background(), s.ID, "10")
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Err != nil || !out[0].NewBatch || out[0].BatchID == full.ID {
		t.Fatalf("allocation = %+v", out)
	}
	if got := f.count(t, full.ID); got != 2 {
		t.Fatalf("full batch count = %d", got)
	}
	var created models.Batch
	f.db.First(&created, "id = ?", out[0].BatchID)
	if created.Capacity != 30 || created.CurrentCount != 1 || created.InstructorID != f.inst.ID {
		t.Fatalf("new batch = %+v", created)
	}
	f.checkInvariants(t)
}

func TestAllocateErrors(t *testing.T) {
	f := newFixture(t)
	a := batch.NewAllocator(f.db, 30, nil)
	s := f.user(t, models.RoleStudent, "10")

	if _, err := a.AllocateStudentToBatches(context.Background(), s.ID, "12"); !errors.Is(err, batch.ErrSubjectNotFound) {
		t.Fatalf("unknown grade err = %v", err)
	}

	f.db.Model(&models.User{}).Where("id = ?", f.inst.ID).Update("active", false)
	out, err := a.AllocateStudentToBatches(context.Background(), s.ID, "10")
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(out[0].Err, batch.ErrNoInstructorAvailable) {
		t.Fatalf("allocation = %+v", out)
	}
}

func TestAllocateSubjectsIndependently(t *testing.T) {
	f := newFixture(t)
	chem := models.Subject{Name: "Chemistry", Grade: "10"}
	f.db.Create(&chem)
	s := f.user(t, models.RoleStudent, "10")

	a := batch.NewAllocator(f.db, 5, nil)
	out, err := a.AllocateStudentToBatches(context.Background(), s.ID, "10")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].SubjectID != chem.ID || out[1].SubjectID != f.subject.ID {
		t.Fatalf("allocations = %+v", out)
	}
	for _, al := range out {
		if al.Err != nil || al.BatchID == "" {
			t.Fatalf("allocation = %+v", al)
		}
	}
}

func TestConcurrentAllocationRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	f.batch(t, 3, 0)
	var students []models.User
	for i := 0; i < 10; i++ {
		students = append(students, f.user(t, models.RoleStudent, "10"))
	}

	a := batch.NewAllocator(f.db, 3, nil)
	var wg sync.WaitGroup
	for _, s := range students {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := a.AllocateStudentToBatches(context.Background(), id, "10"); err != nil {
				t.Error(err)
			}
		}(s.ID)
	}
	wg.Wait()

	var assigned int64
	f.db.Model(&models.BatchAssignment{}).Count(&assigned)
	if assigned != 10 {
		t.Fatalf("assigned = %d", assigned)
	}
	var seats int64
	f.db.Model(&models.Batch{}).Select("COALESCE(SUM(current_count), 0)").Scan(&seats)
	if seats != 10 {
		t.Fatalf("seat total = %d", seats)
	}
	f.checkInvariants(t)
}

func TestDistributeFillsBatchesInOrder(t *testing.T) {
	f := newFixture(t)
	b1 := f.batch(t, 4, 2) // room 2
	b2 := f.batch(t, 3, 2) // room 1
	b3 := f.batch(t, 5, 2) // room 3
	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, f.user(t, models.RoleStudent, "10").ID)
	}
	f.user(t, models.RoleStudent, "11") // wrong grade

	a := batch.NewAllocator(f.db, 30, nil)
	res, err := a.DistributeStudents(context.Background(), f.subject.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Eligible != 5 || res.Assigned != 5 || res.Unassigned() != 0 || len(res.Slices) != 3 {
		t.Fatalf("result = %+v", res)
	}
	sizes := []int{len(res.Slices[0].Students), len(res.Slices[1].Students), len(res.Slices[2].Students)}
	if fmt.Sprint(sizes) != "[2 1 2]" {
		t.Fatalf("slice sizes = %v", sizes)
	}
	if res.Slices[0].BatchID != b1.ID || res.Slices[1].BatchID != b2.ID || res.Slices[2].BatchID != b3.ID {
		t.Fatal("batches not walked in creation order")
	}
	if res.Slices[0].Students[0] != want[0] || res.Slices[1].Students[0] != want[2] || res.Slices[2].Students[1] != want[4] {
		t.Fatalf("slices are not contiguous runs: %+v", res.Slices)
	}
	if f.count(t, b1.ID) != 4 || f.count(t, b2.ID) != 3 || f.count(t, b3.ID) != 4 {
		t.Fatal("seat counts not updated")
	}
	f.checkInvariants(t)

	again, err := a.DistributeStudents(context.Background(), f.subject.ID)
	if err != nil || !again.Nothing {
		t.Fatalf("second pass = %+v, %v", again, err)
	}
}

func TestDistributeStopsWhenRoomRunsOut(t *testing.T) {
	f := newFixture(t)
	f.batch(t, 2, 1)
	f.batch(t, 2, 2)
	for i := 0; i < 3; i++ {
		f.user(t, models.RoleStudent, "10")
	}
	a := batch.NewAllocator(f.db, 30, nil)
	res, err := a.DistributeStudents(context.Background(), f.subject.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Assigned != 1 || res.Unassigned() != 2 {
		t.Fatalf("result = %+v", res)
	}
	f.checkInvariants(t)
}

func TestDistributeErrors(t *testing.T) {
	f := newFixture(t)
	a := batch.NewAllocator(f.db, 30, nil)
	if _, err := a.DistributeStudents(context.Background(), f.subject.ID); !errors.Is(err, batch.ErrNoInstructorsAssigned) {
		t.Fatalf("no batches err = %v", err)
	}
	if _, err := a.DistributeStudents(context.Background(), "missing"); !errors.Is(err, batch.ErrSubjectNotFound) {
		t.Fatalf("missing subject err = %v", err)
	}
	f.batch(t, 2, 0)
	res, err := a.DistributeStudents(context.Background(), f.subject.ID)
	if err != nil || !res.Nothing {
		t.Fatalf("no students = %+v, %v", res, err)
	}
}

func TestAssignRefusesFullBatch(t *testing.T) {
	f := newFixture(t)
	b := f.batch(t, 1, 0)
	s1 := f.user(t, models.RoleStudent, "10")
	s2 := f.user(t, models.RoleStudent, "10")
	a := batch.NewAllocator(f.db, 30, nil)
	ctx := context.Background()

	if err := a.Assign(ctx, s1.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := a.Assign(ctx, s1.ID, b.ID); !errors.Is(err, batch.ErrAlreadyAssigned) {
		t.Fatalf("duplicate err = %v", err)
	}
	if err := a.Assign(ctx, s2.ID, b.ID); !errors.Is(err, batch.ErrCapacityExceeded) {
		t.Fatalf("full err = %v", err)
	}
	if err := a.Assign(ctx, s2.ID, "missing"); !errors.Is(err, batch.ErrBatchNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	f.checkInvariants(t)
}
