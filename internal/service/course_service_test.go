package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

type mockCourseRepo struct {
	courses     map[string]*models.Course
	seq         int
	codeLookups int

	registrations *mockRegistrationRepo
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: map[string]*models.Course{}}
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, c := range m.courses {
		if filter.Level != "" && c.Level != filter.Level {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *c
	return &copy, nil
}

func (m *mockCourseRepo) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	m.codeLookups++
	for _, c := range m.courses {
		if c.Code == code {
			copy := *c
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) codeTaken(course *models.Course) error {
	for _, c := range m.courses {
		if c.ID != course.ID && c.Code == course.Code {
			return appErrors.TranslatePQ(&pq.Error{Code: "23505", Constraint: "courses_code_key"})
		}
	}
	return nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	m.seq++
	course.ID = fmt.Sprintf("c%d", m.seq)
	if err := m.codeTaken(course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	copy := *course
	m.courses[course.ID] = &copy
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := m.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	if err := m.codeTaken(course); err != nil {
		return err
	}
	copy := *course
	m.courses[course.ID] = &copy
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	if m.registrations != nil {
		m.registrations.mu.Lock()
		for rid, r := range m.registrations.items {
			if r.CourseID == id {
				delete(m.registrations.items, rid)
			}
		}
		m.registrations.mu.Unlock()
	}
	return nil
}

type memoryCache struct {
	items   map[string][]byte
	deleted []string
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.items, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

type courseFixture struct {
	svc      *CourseService
	repo     *mockCourseRepo
	cache    *memoryCache
	metrics  *MetricsService
	accounts *AccountService
}

func newCourseFixture(t *testing.T) courseFixture {
	t.Helper()
	users := newMockAccountRepo()
	repo := newMockCourseRepo()
	cache := newMemoryCache()
	metrics := NewMetricsService()
	return courseFixture{
		svc:      NewCourseService(repo, users, cache, nil, nil, metrics, time.Minute),
		repo:     repo,
		cache:    cache,
		metrics:  metrics,
		accounts: newAccountService(users),
	}
}

func (f courseFixture) user(t *testing.T, email, mat string, role models.Role) *models.User {
	t.Helper()
	u, err := f.accounts.CreateUser(context.Background(), email, nil, UserFields{PhoneNumber: "p-" + mat, MatNo: mat, Role: role})
	require.NoError(t, err)
	return u
}

func TestCourseCreateAppliesDefaults(t *testing.T) {
	f := newCourseFixture(t)

	course, err := f.svc.Create(context.Background(), CreateCourseRequest{Code: " csc101 ", Title: "Intro to Computing"})
	require.NoError(t, err)
	assert.Equal(t, "CSC101", course.Code)
	assert.Equal(t, models.DefaultCourseCredits, course.Credits)
	assert.Equal(t, models.DefaultCourseLevel, course.Level)
	assert.Nil(t, course.LecturerID)
	assert.Equal(t, "CSC101 - Intro to Computing", course.String())
}

func TestCourseCreateValidation(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateCourseRequest{Code: "TOOLONGCODE1", Title: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.repo.courses)
}

func TestCourseCreateDuplicateCode(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateCourseRequest{Code: "csc101", Title: "B"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, "code already exists", appErrors.FromError(err).Message)
}

func TestCourseLecturerMustBeStaff(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	student := f.user(t, "s@x.com", "M1", models.RoleStudent)
	coordinator := f.user(t, "c@x.com", "C1", models.RoleCoordinator)

	_, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A", LecturerID: &student.ID})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	missing := "ghost"
	_, err = f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A", LecturerID: &missing})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidReference))

	course, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A", LecturerID: &coordinator.ID})
	require.NoError(t, err)
	require.NotNil(t, course.LecturerID)
	assert.Equal(t, coordinator.ID, *course.LecturerID)
}

func TestCourseAssignLecturer(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	admin := f.user(t, "a@x.com", "A1", models.RoleAdmin)
	course, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A"})
	require.NoError(t, err)

	assigned, err := f.svc.AssignLecturer(ctx, course.ID, &admin.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, *assigned.LecturerID)

	cleared, err := f.svc.AssignLecturer(ctx, course.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.LecturerID)

	_, err = f.svc.AssignLecturer(ctx, "missing", nil)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCourseGetByCodeReadsThroughCache(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A"})
	require.NoError(t, err)

	first, err := f.svc.GetByCode(ctx, "csc101")
	require.NoError(t, err)
	second, err := f.svc.GetByCode(ctx, "CSC101")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.repo.codeLookups)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.cacheLookups.WithLabelValues("miss")))

	_, err = f.svc.GetByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCourseWritesInvalidateCache(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	course, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A"})
	require.NoError(t, err)
	_, err = f.svc.GetByCode(ctx, "CSC101")
	require.NoError(t, err)
	require.Contains(t, f.cache.items, "code:CSC101")

	updated, err := f.svc.Update(ctx, course.ID, UpdateCourseRequest{Code: strPtr("csc102"), Title: strPtr("B")})
	require.NoError(t, err)
	assert.Equal(t, "CSC102", updated.Code)
	assert.NotContains(t, f.cache.items, "code:CSC101")
	assert.Contains(t, f.cache.deleted, "code:CSC102")

	fresh, err := f.svc.GetByCode(ctx, "CSC102")
	require.NoError(t, err)
	assert.Equal(t, "B", fresh.Title)

	require.NoError(t, f.svc.Delete(ctx, course.ID))
	assert.NotContains(t, f.cache.items, "code:CSC102")
	_, err = f.svc.GetByCode(ctx, "CSC102")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCourseGetByCodeFallsBackOnCacheError(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A"})
	require.NoError(t, err)
	f.cache.getErr = errors.New("redis down")

	course, err := f.svc.GetByCode(ctx, "CSC101")
	require.NoError(t, err)
	assert.Equal(t, "CSC101", course.Code)
}

func TestCourseServiceWithoutCache(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, newMockAccountRepo(), nil, nil, nil, nil, 0)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateCourseRequest{Code: "CSC101", Title: "A", Credits: 4, Level: "200"})
	require.NoError(t, err)

	course, err := svc.GetByCode(ctx, "CSC101")
	require.NoError(t, err)
	assert.Equal(t, 4, course.Credits)
	assert.Equal(t, "200", course.Level)

	courses, pagination, err := svc.List(ctx, models.CourseFilter{Level: "200"})
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}
