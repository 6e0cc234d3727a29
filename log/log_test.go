package log_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/log"
	"github.com/stretchr/testify/suite"
)

type (
	Service struct{}

	counts struct {
		bindings.NopMetrics
		bound, invoked int
	}
)

func (c *counts) Bound(string, error)                  { c.bound++ }
func (c *counts) Invoked(string, time.Duration, error) { c.invoked++ }

type LogTestSuite struct {
	suite.Suite
}

func (suite *LogTestSuite) TestLogging() {
	suite.Run("Text", func() {
		var out bytes.Buffer
		logger := log.New(&out, log.Options{})
		logger.WithName("host").Info("Hello", "count", 1)
		suite.Equal(`host: "level"=0 "msg"="Hello" "count"=1`+"\n", out.String())
	})

	suite.Run("Verbosity", func() {
		var out bytes.Buffer
		logger := log.New(&out, log.Options{Verbosity: 1})
		logger.V(1).Info("World")
		logger.V(2).Info("Hidden")
		suite.Contains(out.String(), "World")
		suite.NotContains(out.String(), "Hidden")
	})

	suite.Run("Json", func() {
		var out bytes.Buffer
		logger := log.New(&out, log.Options{Json: true})
		logger.Info("Hello")
		suite.True(strings.HasPrefix(out.String(), "{"))
		suite.Contains(out.String(), `"msg":"Hello"`)
	})

	suite.Run("For", func() {
		var out bytes.Buffer
		root := log.New(&out, log.Options{})
		log.For(root, &Service{}).Info("started")
		log.For(root, reflect.TypeOf(Service{})).Info("started")
		log.For(root, nil).Info("started")
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		suite.Len(lines, 3)
		suite.True(strings.HasPrefix(lines[0], "*log_test.Service: "))
		suite.True(strings.HasPrefix(lines[1], "log_test.Service: "))
		suite.True(strings.HasPrefix(lines[2], `"level"`))
	})
}

func (suite *LogTestSuite) TestObserve() {
	suite.Run("Forwards", func() {
		next := &counts{}
		m := log.Observe(testr.New(suite.T()), 0, next)
		m.Bound("blob", nil)
		m.Bound("queue", errors.New("boom"))
		m.Invoked("Copy", time.Second, nil)
		m.Disposed(nil)
		m.Transferred("read", 10)
		suite.Equal(2, next.bound)
		suite.Equal(1, next.invoked)
	})

	suite.Run("Errors", func() {
		var out bytes.Buffer
		m := log.Observe(log.New(&out, log.Options{}), 1, nil)
		m.Invoked("Copy", time.Second, nil)
		m.Invoked("Copy", time.Second, errors.New("boom"))
		suite.NotContains(out.String(), "function succeeded")
		suite.Contains(out.String(), "function failed")
	})
}

func TestLogTestSuite(t *testing.T) {
	suite.Run(t, new(LogTestSuite))
}
