package tests

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/student"
	"github.com/trezcool/bursar/core/user"
)

func Test_academicYearApi(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	create := func(name, start, end string, current bool) []byte {
		return marchallObj(t, academicyear.NewAcademicYear{Name: name, StartDate: start, EndDate: end, IsCurrent: current})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "no current year", path: "/api/academic-years/current", token: bursarToken, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "current academic year not found"}),
		},
		{
			name: "invalid date", method: http.MethodPost, path: "/api/academic-years", token: bursarToken,
			body: create("2024-2025", "2024-13-01", "2025-07-31", true), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"start_date": "start_date must be a valid date (2006-01-02)"}),
		},
		{
			name: "end before start", method: http.MethodPost, path: "/api/academic-years", token: bursarToken,
			body: create("2024-2025", "2025-07-31", "2024-09-01", true), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_date": "end_date must be after start_date"}),
		},
		{
			name: "first year", method: http.MethodPost, path: "/api/academic-years", token: bursarToken,
			body: create("2024-2025", "2024-09-01", "2025-07-31", true), wantCode: http.StatusCreated,
		},
		{
			name: "second year", method: http.MethodPost, path: "/api/academic-years", token: bursarToken,
			body: create("2025-2026", "2025-09-01", "2026-07-31", false), wantCode: http.StatusCreated,
		},
		{
			name: "name taken", method: http.MethodPost, path: "/api/academic-years", token: bursarToken,
			body: create("2025-2026", "2025-09-01", "2026-07-31", false), wantCode: http.StatusBadRequest,
		},
	})

	current := func(t *testing.T) academicyear.AcademicYear {
		req, rec := newAuthRequest(http.MethodGet, "/api/academic-years/current", bursarToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ay academicyear.AcademicYear
		unmarshal(t, rec, &ay)
		return ay
	}
	assert.Equal(t, "2024-2025", current(t).Name)

	req, rec := newAuthRequest(http.MethodPost, "/api/academic-years/2/current", bursarToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-2026", current(t).Name)

	req, rec = newAuthRequest(http.MethodGet, "/api/academic-years", bursarToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var years []academicyear.AcademicYear
	unmarshal(t, rec, &years)
	require.Len(t, years, 2)
	var flagged int
	for _, ay := range years {
		if ay.IsCurrent {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)
}

func Test_enrollmentApi(t *testing.T) {
	app := setup(t)

	bursarToken := getToken(t, app.conf, app.createUser(t, "bursar", user.RoleBursar))
	enrolled, year := app.enrolledStudent(t, "S001", 1000, 0)

	req, rec := newAuthRequest(http.MethodPost, "/api/students", bursarToken, marchallObj(t, student.NewStudent{
		StudentNumber: "S002", FirstName: "Baraka", LastName: "Mwamba",
	}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var stu student.Student
	unmarshal(t, rec, &stu)

	enroll := func(studentID int, body string) []byte {
		return []byte(sprintf(`{"student_id": %d, "academic_year_id": %d, %s}`, studentID, year.ID, body))
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "already enrolled", method: http.MethodPost, path: "/api/enrollments", token: bursarToken,
			body: enroll(enrolled.ID, `"tuition_fee": "1000"`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"academic_year_id": "the student is already enrolled in this academic year"}),
		},
		{
			name: "percentage out of range", method: http.MethodPost, path: "/api/enrollments", token: bursarToken,
			body: enroll(stu.ID, `"tuition_fee": "1000", "scholarship_percentage": "120"`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/api/enrollments", token: bursarToken,
			body: enroll(99, `"tuition_fee": "1000"`), wantCode: http.StatusNotFound,
		},
	})

	req, rec = newAuthRequest(http.MethodPost, "/api/enrollments", bursarToken,
		enroll(stu.ID, `"grade": "6", "tuition_fee": "1200", "scholarship_percentage": "25"`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e enrollment.Enrollment
	unmarshal(t, rec, &e)
	assertMoney(t, "300", e.ScholarshipAmount, "scholarship_amount")
	assert.Equal(t, enrollment.StatusActive, e.Status)

	path := "/api/enrollments/" + strconv.Itoa(e.ID)

	t.Run("fee change re-syncs reductions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, bursarToken, []byte(`{"tuition_fee": "2000"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got enrollment.Enrollment
		unmarshal(t, rec, &got)
		assertMoney(t, "500", got.ScholarshipAmount, "scholarship_amount")
	})

	t.Run("query by grade", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/enrollments?grade=6", bursarToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got []enrollment.Enrollment
		unmarshal(t, rec, &got)
		require.Len(t, got, 1)
		assert.Equal(t, e.ID, got[0].ID)
	})

	t.Run("withdrawn enrollments are frozen", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path+"/withdraw", bursarToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got enrollment.Enrollment
		unmarshal(t, rec, &got)
		assert.Equal(t, enrollment.StatusWithdrawn, got.Status)

		req, rec = newAuthRequest(http.MethodPut, path, bursarToken, []byte(`{"grade": "7"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
