package codec_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/jobhost/bindings/attrs"
	"github.com/jobhost/bindings/codec"
	"github.com/stretchr/testify/suite"
)

type (
	Shape interface {
		Area() float64
	}

	Square struct {
		Side float64
	}

	PlayerData struct {
		Id   int32
		Name string
		Team *string
	}

	Event struct {
		Name   string
		At     codec.Time
		Access attrs.Access
	}
)

func (s *Square) Area() float64 {
	return s.Side * s.Side
}

type CodecTestSuite struct {
	suite.Suite
	types *codec.Types
}

func (suite *CodecTestSuite) SetupTest() {
	suite.types = codec.RegisterType[Square](new(codec.Types), "square")
}

func (suite *CodecTestSuite) TestMarshal() {
	suite.Run("OmitsNulls", func() {
		j, err := codec.Marshal(PlayerData{Id: 1, Name: "Sean Rose"})
		suite.Nil(err)
		suite.Equal(`{"Id":1,"Name":"Sean Rose"}`, string(j))
	})

	suite.Run("KeepsNullElements", func() {
		j, err := codec.Marshal([]any{1, nil, map[string]any{"a": nil, "b": 2}})
		suite.Nil(err)
		suite.Equal(`[1,null,{"b":2}]`, string(j))
	})

	suite.Run("CamelCase", func() {
		j, err := codec.Marshal(PlayerData{Id: 4, Name: "Mark Kingston"}, codec.CamelCase)
		suite.Nil(err)
		suite.Equal(`{"id":4,"name":"Mark Kingston"}`, string(j))
	})

	suite.Run("Pretty", func() {
		j, err := codec.Marshal(map[string]int{"a": 1}, codec.Pretty)
		suite.Nil(err)
		suite.Equal("{\n  \"a\": 1\n}", string(j))
	})

	suite.Run("Encode", func() {
		var b bytes.Buffer
		suite.Nil(codec.Encode(&b, PlayerData{Id: 8}, codec.CamelCase))
		suite.Equal(`{"id":8,"name":""}`, b.String())
	})

	suite.Run("Enums", func() {
		j, err := codec.Marshal(Event{Name: "e", Access: attrs.AccessWrite})
		suite.Nil(err)
		suite.Equal(`{"Name":"e","Access":"Write"}`, string(j))
	})
}

func (suite *CodecTestSuite) TestUnmarshal() {
	suite.Run("Typed", func() {
		var shape Shape
		err := codec.Unmarshal([]byte(`{"$type":"square","Side":3}`), &shape,
			codec.Options{Types: suite.types})
		suite.Nil(err)
		suite.Equal(9.0, shape.Area())
	})

	suite.Run("AlternateTypeField", func() {
		var v any
		err := codec.Unmarshal([]byte(`{"@type":"square","Side":2}`), &v,
			codec.Options{Types: suite.types})
		suite.Nil(err)
		suite.Equal(Square{Side: 2}, v)
	})

	suite.Run("UnknownType", func() {
		var shape Shape
		err := codec.Unmarshal([]byte(`{"$type":"circle"}`), &shape,
			codec.Options{Types: suite.types})
		var ute *codec.UnknownTypeIdError
		suite.True(errors.As(err, &ute))
		suite.Equal("circle", ute.TypeId)
	})

	suite.Run("NotAssignable", func() {
		var shape Shape
		types := codec.RegisterType[PlayerData](new(codec.Types), "player")
		err := codec.Unmarshal([]byte(`{"$type":"player"}`), &shape, codec.Options{Types: types})
		suite.NotNil(err)
	})

	suite.Run("IgnoresTypeForConcreteTargets", func() {
		var square Square
		err := codec.Unmarshal([]byte(`{"$type":"circle","Side":5}`), &square)
		suite.Nil(err)
		suite.Equal(5.0, square.Side)
	})

	suite.Run("Decode", func() {
		var player PlayerData
		err := codec.Decode(bytes.NewBufferString(`{"id":2,"name":"Tim Howard"}`),
			&player, codec.CamelCase)
		suite.Nil(err)
		suite.Equal(PlayerData{Id: 2, Name: "Tim Howard"}, player)
	})
}

func (suite *CodecTestSuite) TestTime() {
	suite.Run("UTC", func() {
		at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("x", 2*60*60))
		j, err := codec.Marshal(Event{Name: "e", At: codec.At(at)})
		suite.Nil(err)
		suite.Equal(`{"Name":"e","At":"2024-05-01T10:30:00Z","Access":"Read"}`, string(j))
	})

	suite.Run("AssumesUTC", func() {
		var event Event
		suite.Nil(codec.Unmarshal([]byte(`{"At":"2024-05-01T10:30:00"}`), &event))
		suite.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), event.At.Time)
	})

	suite.Run("Zero", func() {
		j, err := codec.Marshal(Event{Name: "e", Access: attrs.AccessWrite})
		suite.Nil(err)
		suite.NotContains(string(j), "At")
	})
}

func TestCodecTestSuite(t *testing.T) {
	suite.Run(t, new(CodecTestSuite))
}
