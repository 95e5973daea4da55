package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/bursar/core"
)

const commonPasswordsPath = "assets/common-passwords.txt.gz"

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	commonPasswords   []string // sorted
	commonPasswordsMu sync.RWMutex
)

// InitValidators registers the user validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords reads the gzipped common passwords list from fsys.
func LoadCommonPasswords(fsys fs.FS, logger core.Logger) {
	file, err := fsys.Open(commonPasswordsPath)
	if err != nil {
		logger.Warn("common passwords not loaded", errors.Wrap(err, "opening "+commonPasswordsPath))
		return
	}
	defer func() { _ = file.Close() }()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		logger.Warn("common passwords not loaded", errors.Wrap(err, "reading "+commonPasswordsPath))
		return
	}

	pwds := make([]string, 0, 64)
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()

	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if RolePriority(role) == 0 {
			return false
		}
	}
	return true
}

// userStructValidation does struct level validation on NewUser and UpdateUser structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if tag := checkPassword(usr.Password, usr.Name, usr.Username, usr.Email); tag != "" {
			sl.ReportError(usr.Password, "password", "Password", tag, "")
		}
	case UpdateUser:
		if usr.Password == "" {
			return
		}
		if tag := checkPassword(usr.Password, usr.Name, usr.Username, usr.Email); tag != "" {
			sl.ReportError(usr.Password, "password", "Password", tag, "")
		}
	}
}

// checkPassword applies the password policy and returns the tag of the first failed rule:
// - minLen: 8
// - no whitespace
// - not all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - not similar to user attrs
// - not a common password
func checkPassword(pwd string, attrs ...string) string {
	if len(pwd) < pwdMinLen {
		return pwdMinLenTag
	}

	var digits int
	var hasUpper, hasLower bool
	for _, char := range pwd {
		switch {
		case unicode.IsSpace(char):
			return pwdNoSpaceTag
		case unicode.IsDigit(char):
			digits++
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		}
	}
	if digits == len([]rune(pwd)) {
		return pwdNotAllNumTag
	}
	if !(hasUpper && hasLower && digits > 0 && specialRegex.MatchString(pwd)) {
		return pwdComplexityTag
	}

	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		m := difflib.NewMatcher(strings.Split(strings.ToLower(pwd), ""), strings.Split(strings.ToLower(attr), ""))
		if m.QuickRatio() >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}

	if isCommonPassword(pwd) {
		return pwdNoCommonTag
	}
	return ""
}
