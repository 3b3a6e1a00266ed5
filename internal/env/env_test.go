package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	got := Parse([]string{"A=1", "B=x=y", "novalue", "=empty", "C="})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": ""}, got)
}

func TestMergePrecedence(t *testing.T) {
	t.Setenv("SVCWATCH_TEST_BASE", "os")
	t.Setenv("SVCWATCH_TEST_OVERRIDE", "os")

	e := New([]string{"SVCWATCH_TEST_OVERRIDE=global", "SVCWATCH_TEST_GLOBAL=g"})
	out := Parse(e.Merge([]string{"SVCWATCH_TEST_GLOBAL=svc"}))

	assert.Equal(t, "os", out["SVCWATCH_TEST_BASE"])
	assert.Equal(t, "global", out["SVCWATCH_TEST_OVERRIDE"])
	assert.Equal(t, "svc", out["SVCWATCH_TEST_GLOBAL"])
}

func TestMergeExpands(t *testing.T) {
	e := &Env{Global: map[string]string{"HOME_DIR": "/srv"}}
	out := Parse(e.Merge([]string{"DATA=${HOME_DIR}/data", "LOGS=$HOME_DIR/logs", "MISSING=${NOPE}x"}))
	assert.Equal(t, "/srv/data", out["DATA"])
	assert.Equal(t, "/srv/logs", out["LOGS"])
	assert.Equal(t, "x", out["MISSING"])
}

func TestMergeSorted(t *testing.T) {
	e := &Env{Global: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, e.Merge([]string{"C=3"}))
}
