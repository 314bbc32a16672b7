// Package validate registers the custom go-playground/validator rules
// every HTTP DTO in internal/httpapi relies on: SemVer version strings,
// 5-field cron expressions, HH:MM window bounds and the env_name enum.
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/clock"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

var (
	instance *validator.Validate
	once     sync.Once
)

// V returns the process-wide validator with custom rules registered
// exactly once, matching the sibling cron dispatcher's singleton setup.
func V() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
		_ = instance.RegisterValidation("semver", isSemVer)
		_ = instance.RegisterValidation("cronexpr", isCronExpr)
		_ = instance.RegisterValidation("hhmm", isHHMM)
		_ = instance.RegisterValidation("envname", isEnvName)
	})
	return instance
}

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z-.]+)?(\+[0-9A-Za-z-.]+)?$`)

func isSemVer(fl validator.FieldLevel) bool {
	return semverRe.MatchString(fl.Field().String())
}

func isCronExpr(fl validator.FieldLevel) bool {
	_, err := clock.ParseCron(fl.Field().String())
	return err == nil
}

func isHHMM(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return true // window bounds are optional
	}
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return false
	}
	return true
}

func isEnvName(fl validator.FieldLevel) bool {
	return domain.EnvName(fl.Field().String()).Valid()
}
