package koanf_test

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/jobhost/bindings/config"
	koanfp "github.com/jobhost/bindings/config/koanf"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/stretchr/testify/suite"
)

type KoanfTestSuite struct {
	suite.Suite
	k *koanf.Koanf
}

func (suite *KoanfTestSuite) SetupTest() {
	suite.k = koanf.New(".")
	err := suite.k.Load(file.Provider("testdata/host.json"), json.Parser())
	suite.Nil(err)
}

func (suite *KoanfTestSuite) TestProvider() {
	suite.Run("Settings", func() {
		s, err := config.Load(koanfp.P(suite.k), "host")
		suite.Nil(err)
		suite.Equal("functions.yaml", s.Functions)
		suite.True(s.Strict)
		suite.True(s.CamelCase)
		suite.Equal(30*time.Second, s.Timeout)
		suite.Equal(2, s.Log.Verbosity)
		suite.Equal("stderr", s.Log.Output)
		suite.Equal("host.db", s.Storage[config.DefaultConnection].Path)
		suite.Equal("archive", s.Storage["archive"].S3.Bucket)
		suite.Equal("jobs", s.Metrics.Namespace)
		suite.Equal("input", s.Names["Container"])
	})

	suite.Run("Defaults", func() {
		s, err := config.Load(koanfp.P(suite.k), "missing")
		suite.Nil(err)
		suite.Equal(5*time.Minute, s.Timeout)
		suite.Nil(s.Metrics)
	})

	suite.Run("Invalid", func() {
		_, err := config.Load(koanfp.P(suite.k), "broken")
		suite.ErrorContains(err, "config: ")
		suite.ErrorContains(err, "Verbosity")
	})

	suite.Run("Cached", func() {
		f := config.NewFactory(koanfp.P(suite.k))
		first, err := config.Get[*config.Settings](f, "host")
		suite.Nil(err)
		second, err := config.Get[*config.Settings](f, "host")
		suite.Nil(err)
		suite.Same(first, second)
	})

	suite.Run("Flat", func() {
		type Urls struct {
			Functions string `path:"host.functions"`
			Verbosity int    `path:"host.log.verbosity"`
		}
		f := config.NewFactory(koanfp.P(suite.k))
		out, err := f.NewConfiguration(reflect.TypeFor[Urls](), "", true)
		suite.Nil(err)
		suite.Equal(Urls{"functions.yaml", 2}, out)
	})
}

func (suite *KoanfTestSuite) TestNames() {
	suite.Run("Exact", func() {
		value, ok, err := koanfp.Names(suite.k, "host.names").Resolve("Queue")
		suite.Nil(err)
		suite.True(ok)
		suite.Equal("orders", value)
	})

	suite.Run("IgnoreCase", func() {
		value, ok, _ := koanfp.Names(suite.k, "host.names").Resolve("container")
		suite.True(ok)
		suite.Equal("input", value)
	})

	suite.Run("Missing", func() {
		_, ok, err := koanfp.Names(suite.k, "host.names").Resolve("other")
		suite.Nil(err)
		suite.False(ok)
	})
}

func (suite *KoanfTestSuite) TestEnv() {
	_ = os.Setenv("JobHost__Strict", "true")
	_ = os.Setenv("JobHost__Storage__0__Path", "first.db")
	_ = os.Setenv("JobHost__Storage__1__Path", "second.db")
	defer func() {
		_ = os.Unsetenv("JobHost__Strict")
		_ = os.Unsetenv("JobHost__Storage__0__Path")
		_ = os.Unsetenv("JobHost__Storage__1__Path")
	}()
	k := koanf.New(".")
	err := k.Load(env.Provider("JobHost", "__", nil), nil,
		koanf.WithMergeFunc(koanfp.Merge))
	suite.Nil(err)
	var out struct {
		Strict  bool `path:"Strict"`
		Storage []struct {
			Path string `path:"Path"`
		} `path:"Storage"`
	}
	suite.Nil(koanfp.P(k).Unmarshal("JobHost", false, &out))
	suite.True(out.Strict)
	suite.Len(out.Storage, 2)
	suite.Equal("second.db", out.Storage[1].Path)
}

func (suite *KoanfTestSuite) TestSlices() {
	suite.Run("Nothing", func() {
		s, ok := koanfp.ConvertSlices(map[string]any{"Name": "John"})
		suite.False(ok)
		suite.Nil(s)
	})

	suite.Run("Simple", func() {
		s, ok := koanfp.ConvertSlices(map[string]any{"0": 12, "2": 22, "1": 37})
		suite.True(ok)
		suite.Equal([]any{12, 37, 22}, s)
	})

	suite.Run("Sparse", func() {
		s, ok := koanfp.ConvertSlices(map[string]any{"3": 42, "1": 19})
		suite.True(ok)
		suite.Equal([]any{nil, 19, nil, 42}, s)
	})

	suite.Run("Mixed", func() {
		s, ok := koanfp.ConvertSlices(map[string]any{"0": 1, "Name": "John"})
		suite.False(ok)
		suite.Nil(s)
	})

	suite.Run("Nested", func() {
		m := map[string]any{"items": map[string]any{"0": "a", "1": "b"}}
		_, ok := koanfp.ConvertSlices(m)
		suite.False(ok)
		suite.Equal([]any{"a", "b"}, m["items"])
	})
}

func TestKoanfTestSuite(t *testing.T) {
	suite.Run(t, new(KoanfTestSuite))
}
