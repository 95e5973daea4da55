package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core/user"
	testutil "github.com/trezcool/bursar/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@test.cd", "LolC@t123", []string{user.RoleBursar}, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", "LolC@t123", []string{user.RoleBursar}, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "bursar", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: marchallObj(t, echoapi.LoginRequest{Username: "BURSAR ", Password: "LolC@t123"}), wantCode: http.StatusOK},
		{name: "by email", body: marchallObj(t, echoapi.LoginRequest{Username: "bursar@test.cd", Password: "LolC@t123"}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var respData echoapi.LoginResponse
				unmarshal(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, now.Add(1*time.Hour))
	bursar := testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@test.cd", "", []string{user.RoleBursar}, true, now.Add(2*time.Hour))
	auditor := testutil.CreateUser(t, app.usrRepo, "Auditor", "auditor", "auditor@test.cd", "", []string{user.RoleAuditor}, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleBursar}, false, now) // 😂

	adminToken := getToken(t, app.conf, admin)
	empty := marchallList(t)

	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/api/users", token: getToken(t, app.conf, bursar), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: "/api/users", token: adminToken, wantData: marchallList(t, admin, bursar, auditor, naughty)},
		// filtering
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=BURS", path: path("BURS", "", nil), token: adminToken, wantData: marchallList(t, bursar)},
		{name: "role (unknown)", path: path("", "", nil, "lol"), token: adminToken, wantData: empty},
		{name: "role=bursar", path: path("", "", nil, user.RoleBursar), token: adminToken, wantData: marchallList(t, bursar, naughty)},
		{
			name: "role=admin,auditor", path: path("", "", nil, user.RoleAdmin, user.RoleAuditor),
			token: adminToken, wantData: marchallList(t, admin, auditor),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{name: "all combo", path: path("dog", "", bPtr(true), user.RoleBursar), token: adminToken, wantData: empty},
		// ordering
		{
			name: "order by -created_at", path: path("", "-created_at", nil), token: adminToken,
			wantData: marchallList(t, auditor, bursar, admin, naughty),
		},
		{name: "order by name", path: path("", "name", nil), token: adminToken, wantData: marchallList(t, admin, auditor, bursar, naughty)},
	})
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	bursar := testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@test.cd", "", []string{user.RoleBursar}, true)
	adminToken := getToken(t, app.conf, admin)

	newUser := func(uname, pwd string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "New User", Username: uname, Email: uname + "@test.cd", Password: pwd, PasswordConfirm: pwd, Roles: roles,
		})
	}

	tests := []httpTest{
		{name: "Admin required", token: getToken(t, app.conf, bursar), wantCode: http.StatusForbidden},
		{
			name: "weak password", token: adminToken, body: newUser("cashier", "lol12345"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
			}),
		},
		{
			name: "unknown role", token: adminToken, body: newUser("cashier", "LolC@t123", "teacher"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
		{
			name: "username taken", token: adminToken, body: newUser("bursar", "LolC@t123"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{name: "created", token: adminToken, body: newUser("cashier", "LolC@t123", user.RoleBursar), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.Equal(t, "cashier", usr.Username)
				assert.Equal(t, []string{user.RoleBursar}, usr.Roles)
				assert.True(t, usr.IsActive)
			}
		})
	}
}

func Test_userApi_update(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	bursar := testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@test.cd", "", []string{user.RoleBursar}, true)
	auditor := testutil.CreateUser(t, app.usrRepo, "Auditor", "auditor", "auditor@test.cd", "", []string{user.RoleAuditor}, true)
	path := func(id int) string { return "/api/users/" + strconv.Itoa(id) }

	runHTTPTests(t, app, []httpTest{
		{
			name: "other user is hidden", method: http.MethodPut, path: path(auditor.ID), token: getToken(t, app.conf, bursar),
			body: marchallObj(t, user.UpdateUser{Name: "Lol"}), wantCode: http.StatusNotFound,
		},
		{
			name: "roles need admin", method: http.MethodPut, path: path(bursar.ID), token: getToken(t, app.conf, bursar),
			body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}}), wantCode: http.StatusForbidden,
		},
		{
			name: "own name", method: http.MethodPut, path: path(bursar.ID), token: getToken(t, app.conf, bursar),
			body: marchallObj(t, user.UpdateUser{Name: "Chief Bursar"}), wantCode: http.StatusOK,
		},
		{
			name: "admin deactivates", method: http.MethodPut, path: path(auditor.ID), token: getToken(t, app.conf, admin),
			body: []byte(`{"is_active": false}`), wantCode: http.StatusOK,
		},
		{name: "admin cannot delete themselves", method: http.MethodDelete, path: path(admin.ID), token: getToken(t, app.conf, admin), wantCode: http.StatusForbidden},
		{name: "admin deletes", method: http.MethodDelete, path: path(auditor.ID), token: getToken(t, app.conf, admin), wantCode: http.StatusNoContent},
	})

	usr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: bursar.ID})
	require.NoError(t, err)
	assert.Equal(t, "Chief Bursar", usr.Name)
	_, err = app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: auditor.ID})
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)

	naughty := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleBursar}, false) // 😂
	bursar := testutil.CreateUser(t, app.usrRepo, "Bursar", "bursar", "bursar@test.cd", "", []string{user.RoleBursar}, true)

	now := time.Now()
	// originally issued before the refresh threshold
	unrefreshableClaims := echoapi.GetUserClaims(app.conf, bursar, now.Add(-2*app.conf.Server.JWTRefreshExpirationDelta).Unix())
	unrefreshableToken, err := echoapi.GenerateToken(app.conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, app.conf, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, app.conf, bursar), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code)
				var respData echoapi.LoginResponse
				unmarshal(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
