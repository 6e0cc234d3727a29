package pattern_test

import (
	"errors"
	"testing"

	"github.com/jobhost/bindings/pattern"
	"github.com/stretchr/testify/suite"
)

type MatchTestSuite struct {
	suite.Suite
}

func (suite *MatchTestSuite) TestForward() {
	suite.Run("RoundTrip", func() {
		templates := []string{
			"container/{a}-{b}/{c}.csv",
			"container/{name}",
			"container/in/{year}/{month}/{day}.log",
		}
		inputs := []pattern.Values{
			{"a": "x", "b": "y", "c": "z.w"},
			{"name": "foo.bar.baz"},
			{"year": "2024", "month": "03", "day": "17"},
		}
		for i, template := range templates {
			path, err := pattern.Resolve(template, inputs[i])
			suite.Nil(err)
			values, ok, err := pattern.MatchForward(template, path)
			suite.Nil(err)
			suite.True(ok, template)
			suite.True(inputs[i].Equal(values), "%s: %v", template, values)
		}
	})

	suite.Run("ContainerMismatch", func() {
		for _, actual := range []string{
			"containerB/foo.csv", "containerB/", "containerB", "other/x/y",
		} {
			values, ok, err := pattern.MatchForward("containerA/{name}", actual)
			suite.Nil(err)
			suite.False(ok)
			suite.Nil(values)
		}
	})

	suite.Run("ContainerIgnoresCase", func() {
		values, ok, _ := pattern.MatchForward("Container/{name}", "cONTAINER/x")
		suite.True(ok)
		suite.Equal(pattern.Values{"name": "x"}, values)
	})

	suite.Run("ContainerOnly", func() {
		values, ok, err := pattern.MatchForward("container", "container/any/thing")
		suite.Nil(err)
		suite.True(ok)
		suite.Empty(values)
	})

	suite.Run("TailCapture", func() {
		values, ok, _ := pattern.MatchForward("container/{name}", "container/foo.csv")
		suite.True(ok)
		suite.Equal(pattern.Values{"name": "foo.csv"}, values)
	})

	suite.Run("ExtensionAware", func() {
		values, ok, _ := pattern.MatchForward("container/{name}.csv", "container/foo.alpha.csv")
		suite.True(ok)
		suite.Equal(pattern.Values{"name": "foo.alpha"}, values)
	})

	suite.Run("ExtensionIgnoresCase", func() {
		values, ok, _ := pattern.MatchForward("container/{name}.csv", "container/a.b.CSV")
		suite.True(ok)
		suite.Equal(pattern.Values{"name": "a.b"}, values)
	})

	// The first placeholder stops at the first delimiter.
	suite.Run("SplitsAtFirstDelimiter", func() {
		values, ok, _ := pattern.MatchForward("container/{a}.{b}", "container/foo.alpha.beta.csv")
		suite.True(ok)
		suite.Equal(pattern.Values{"a": "foo", "b": "alpha.beta.csv"}, values)
	})

	suite.Run("LiteralMismatch", func() {
		_, ok, _ := pattern.MatchForward("container/in-{name}", "container/out-x")
		suite.False(ok)
	})

	suite.Run("DelimiterMissing", func() {
		_, ok, _ := pattern.MatchForward("container/{a}-{b}", "container/nodash")
		suite.False(ok)
	})

	suite.Run("UnequalLength", func() {
		_, ok, _ := pattern.MatchForward("container/{a}-x", "container/a-xyz")
		suite.False(ok)
	})

	suite.Run("NoActualBlob", func() {
		_, ok, _ := pattern.MatchForward("container/{a}", "container")
		suite.False(ok)
	})

	suite.Run("Malformed", func() {
		_, _, err := pattern.MatchForward("container/{a-b", "container/x-y")
		suite.True(errors.Is(err, pattern.ErrMissingClosingBracket))
	})

	suite.Run("Pattern", func() {
		p := pattern.MustParse("input/{name}.csv")
		values, ok := p.MatchForward("input/a.b.csv")
		suite.True(ok)
		suite.Equal("a.b", values["name"])
	})
}

func (suite *MatchTestSuite) TestReverse() {
	suite.Run("RoundTrip", func() {
		template := "container/{a}-{b}/{c}.csv"
		input := pattern.Values{"a": "x", "b": "y", "c": "z.w"}
		path, err := pattern.Resolve(template, input)
		suite.Nil(err)
		values, ok, err := pattern.MatchReverse(template, path)
		suite.Nil(err)
		suite.True(ok)
		suite.True(input.Equal(values))
	})

	suite.Run("ContainerMismatch", func() {
		_, ok, err := pattern.MatchReverse("containerA/{name}", "containerB/foo")
		suite.Nil(err)
		suite.False(ok)
	})

	suite.Run("ContainerOnly", func() {
		values, ok, _ := pattern.MatchReverse("container", "container/x")
		suite.True(ok)
		suite.Empty(values)
	})

	suite.Run("TailCapture", func() {
		values, ok, _ := pattern.MatchReverse("container/{name}", "container/foo.csv")
		suite.True(ok)
		suite.Equal(pattern.Values{"name": "foo.csv"}, values)
	})

	suite.Run("ExtensionAware", func() {
		values, ok, _ := pattern.MatchReverse("container/{name}.csv", "container/foo.alpha.csv")
		suite.True(ok)
		suite.Equal(pattern.Values{"name": "foo.alpha"}, values)
	})

	// The last placeholder stops at the last delimiter.
	suite.Run("SplitsAtLastDelimiter", func() {
		values, ok, _ := pattern.MatchReverse("container/{a}.{b}", "container/foo.alpha.beta.csv")
		suite.True(ok)
		suite.Equal(pattern.Values{"a": "foo.alpha.beta", "b": "csv"}, values)
	})

	suite.Run("LiteralMismatch", func() {
		_, ok, _ := pattern.MatchReverse("container/{name}.csv", "container/foo.txt")
		suite.False(ok)
	})

	suite.Run("PrefixNotConsumed", func() {
		_, ok, _ := pattern.MatchReverse("container/in/{name}", "container/xin/foo")
		suite.False(ok)
	})

	suite.Run("DelimiterMissing", func() {
		_, ok, _ := pattern.MatchReverse("container/x/{name}", "container/foo")
		suite.False(ok)
	})

	suite.Run("Malformed", func() {
		_, _, err := pattern.MatchReverse("container/a}", "container/a}")
		suite.True(errors.Is(err, pattern.ErrMissingOpeningBracket))
	})

	suite.Run("Pattern", func() {
		p := pattern.MustParse("input/{dir}/{name}")
		values, ok := p.Match("input/a/b/c")
		suite.True(ok)
		suite.Equal(pattern.Values{"dir": "a/b", "name": "c"}, values)
	})
}

func (suite *MatchTestSuite) TestValues() {
	values := pattern.Values{"Name": "x"}
	v, ok := values.Lookup("NAME")
	suite.True(ok)
	suite.Equal("x", v)
	_, ok = values.Lookup("other")
	suite.False(ok)
	suite.True(values.Equal(pattern.Values{"name": "x"}))
	suite.False(values.Equal(pattern.Values{"name": "y"}))
}

func TestMatchTestSuite(t *testing.T) {
	suite.Run(t, new(MatchTestSuite))
}
