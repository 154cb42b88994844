package testlog

import (
	"testing"

	"github.com/danmuck/groundctl/internal/logging"
	"github.com/danmuck/groundctl/internal/logs"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}
