package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Driver messages for unique violations (postgres 23505, mysql 1062, sqlite
// 2067), each followed by the violated constraint, index or column list.
var duplicateMarkers = []string{
	"duplicate key value violates unique constraint ",
	"for key ",
	"UNIQUE constraint failed: ",
}

func IsDuplicateKeyErr(err error) bool {
	_, ok := DuplicateTarget(err)
	return ok
}

// DuplicateTarget reports whether err is a unique violation and, when the
// driver says so, what it violated: a constraint or index name on postgres
// and mysql, a "table.column" list on sqlite. Errors translated by gorm carry
// no target.
func DuplicateTarget(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	for _, marker := range duplicateMarkers {
		idx := strings.Index(msg, marker)
		if idx < 0 {
			continue
		}
		if marker == "for key " && !strings.Contains(msg, "Error 1062") {
			continue
		}
		target := msg[idx+len(marker):]
		if cut := strings.Index(target, " ("); cut >= 0 {
			target = target[:cut]
		}
		return strings.Trim(strings.TrimSpace(target), `"'`), true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	return "", false
}

// IsDuplicateOn reports a unique violation of any of targets. A violation
// whose target is unknown matches, so callers must only ask where a single
// unique key can be hit.
func IsDuplicateOn(err error, targets ...string) bool {
	got, ok := DuplicateTarget(err)
	if !ok {
		return false
	}
	if got == "" {
		return true
	}
	for _, target := range targets {
		if target != "" && strings.Contains(got, target) {
			return true
		}
	}
	return false
}
