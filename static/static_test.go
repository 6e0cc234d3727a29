package static_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jobhost/bindings/attrs"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/static"
	foreign "github.com/jobhost/bindings/static/internal/attrs"
	"github.com/jobhost/bindings/storage"
	"github.com/stretchr/testify/suite"
)

type Order struct {
	Id       string
	Customer string
	Total    float64
}

type StaticTestSuite struct {
	suite.Suite
	resolver names.Resolver
}

func (suite *StaticTestSuite) SetupTest() {
	suite.resolver = names.Map{"container": "input", "queue": "Orders", "schedule": "00:05:00"}
}

func (suite *StaticTestSuite) param(name string, typ any) metadata.Parameter {
	return metadata.Parameter{Name: name, Type: reflect.TypeOf(typ)}
}

func (suite *StaticTestSuite) TestBlob() {
	suite.Run("Trigger", func() {
		b, err := static.Bind(attrs.BlobTrigger{Path: "%container%/{name}.{ext}"},
			suite.param("input", ""), suite.resolver)
		suite.Nil(err)
		blob := b.(*static.Blob)
		suite.True(blob.Trigger)
		suite.Equal(blobpath.Path{Container: "input", Blob: "{name}.{ext}"}, blob.Path)
		suite.Equal([]string{"name", "ext", static.BlobTriggerData}, b.ProducedRouteParameters())
		suite.Empty(b.RequiredRouteParameters())
		trigger, ok := static.AsTrigger(b)
		suite.True(ok)
		suite.Equal([]string{"BlobTrigger", "ext", "name"}, trigger.Contract().Names())
		suite.Equal("BlobTrigger(input/{name}.{ext})", b.String())
	})

	suite.Run("Output", func() {
		b, err := static.Bind(attrs.Blob{Path: "output/{name}.txt", Access: attrs.AccessWrite},
			suite.param("output", new(string)), nil)
		suite.Nil(err)
		suite.Equal([]string{"name"}, b.RequiredRouteParameters())
		suite.Empty(b.ProducedRouteParameters())
		_, ok := static.AsTrigger(b)
		suite.False(ok)
		suite.Equal("Blob(output/{name}.txt, Write)", b.String())
	})

	suite.Run("Unresolved", func() {
		_, err := static.Bind(attrs.Blob{Path: "%missing%/x"}, suite.param("b", ""), suite.resolver)
		suite.True(errors.Is(err, names.ErrUnresolved))
		var se *static.Error
		suite.True(errors.As(err, &se))
		suite.Equal("b", se.Parameter)
	})

	suite.Run("Required", func() {
		_, err := static.Bind(attrs.Blob{}, suite.param("b", ""), nil)
		suite.NotNil(err)
	})

	suite.Run("Malformed", func() {
		_, err := static.Bind(attrs.Blob{Path: "c/{name"}, suite.param("b", ""), nil)
		suite.NotNil(err)
	})
}

func (suite *StaticTestSuite) TestQueue() {
	suite.Run("Trigger", func() {
		b, err := static.Bind(attrs.QueueTrigger{QueueName: "%queue%"},
			suite.param("order", Order{}), suite.resolver)
		suite.Nil(err)
		q := b.(*static.Queue)
		suite.Equal("orders", q.QueueName)
		suite.True(q.Trigger)
		suite.Equal([]string{
			"Customer", "DequeueCount", "Id", "InsertionTime", "QueueTrigger", "Total",
		}, b.ProducedRouteParameters())
		typ, _, _ := q.Contract().Lookup("id")
		suite.Equal(reflect.TypeOf(""), typ)
	})

	suite.Run("OutputWithParameters", func() {
		b, err := static.Bind(attrs.Queue{QueueName: "Out-{Customer}"},
			suite.param("out", new(string)), nil)
		suite.Nil(err)
		suite.Equal("out-{customer}", b.(*static.Queue).QueueName)
		suite.Equal([]string{"customer"}, b.RequiredRouteParameters())
	})

	suite.Run("InvalidName", func() {
		_, err := static.Bind(attrs.Queue{QueueName: "bad--name"}, suite.param("out", new(string)), nil)
		suite.True(errors.Is(err, storage.ErrInvalidQueueName))
	})

	suite.Run("TriggerWithParameters", func() {
		_, err := static.Bind(attrs.QueueTrigger{QueueName: "in-{x}"}, suite.param("in", ""), nil)
		suite.NotNil(err)
	})
}

func (suite *StaticTestSuite) TestTable() {
	suite.Run("Table", func() {
		b, err := static.Bind(attrs.Table{TableName: "Orders"}, suite.param("t", ""), nil)
		suite.Nil(err)
		suite.IsType(&static.Table{}, b)
		suite.Equal("Table(Orders)", b.String())
	})

	suite.Run("Entity", func() {
		b, err := static.Bind(attrs.Table{TableName: "Orders", PartitionKey: "{Customer}", RowKey: "{Id}"},
			suite.param("e", Order{}), nil)
		suite.Nil(err)
		e := b.(*static.TableEntity)
		suite.Equal("Orders", e.TableName)
		suite.Equal([]string{"Customer", "Id"}, b.RequiredRouteParameters())
	})

	suite.Run("RowKeyNeedsPartitionKey", func() {
		_, err := static.Bind(attrs.Table{TableName: "Orders", RowKey: "r"}, suite.param("e", ""), nil)
		suite.NotNil(err)
	})

	suite.Run("InvalidTable", func() {
		_, err := static.Bind(attrs.Table{TableName: "1bad"}, suite.param("t", ""), nil)
		suite.True(errors.Is(err, storage.ErrInvalidTableName))
	})

	suite.Run("InvalidKey", func() {
		_, err := static.Bind(attrs.Table{TableName: "Orders", PartitionKey: "a/b", RowKey: "r"},
			suite.param("e", ""), nil)
		suite.True(errors.Is(err, storage.ErrInvalidEntityKey))
	})
}

func (suite *StaticTestSuite) TestTimer() {
	from := time.Date(2024, 5, 1, 10, 2, 30, 0, time.UTC)

	suite.Run("Cron", func() {
		b, err := static.Bind(attrs.TimerTrigger{Schedule: "0 */5 * * * *"}, suite.param("t", ""), nil)
		suite.Nil(err)
		timer := b.(*static.Timer)
		suite.Equal(time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC), timer.Schedule.Next(from))
		suite.Equal("TimerTrigger(0 */5 * * * *)", b.String())
		_, ok := static.AsTrigger(b)
		suite.True(ok)
	})

	suite.Run("Interval", func() {
		b, err := static.Bind(attrs.TimerTrigger{Schedule: "%schedule%", RunOnStartup: true},
			suite.param("t", ""), suite.resolver)
		suite.Nil(err)
		timer := b.(*static.Timer)
		suite.True(timer.RunOnStartup)
		suite.Equal([]time.Time{
			from.Add(5 * time.Minute), from.Add(10 * time.Minute),
		}, static.Occurrences(timer.Schedule, from, 2))
		suite.Equal("00:05:00", timer.Schedule.String())
	})

	suite.Run("Invalid", func() {
		_, err := static.Bind(attrs.TimerTrigger{Schedule: "not a schedule"}, suite.param("t", ""), nil)
		suite.NotNil(err)
		_, err = static.ParseSchedule("00:00:00")
		suite.NotNil(err)
	})
}

func (suite *StaticTestSuite) TestOther() {
	suite.Run("Binder", func() {
		b, err := static.Bind(attrs.Binder{}, suite.param("binder", 0), nil)
		suite.Nil(err)
		suite.Equal(&static.Binder{Param: "binder"}, b)
	})

	suite.Run("Unknown", func() {
		b, err := static.Bind(struct{ Path string }{"x"}, suite.param("x", ""), nil)
		suite.Nil(err)
		suite.Nil(b)
		b, err = static.Bind(foreign.Sample{}, suite.param("x", ""), nil)
		suite.Nil(err)
		suite.Nil(b)
	})

	suite.Run("DuplicateFramework", func() {
		_, err := static.Bind(foreign.Blob{Path: "c/b"}, suite.param("x", ""), nil)
		var de *static.DuplicateFrameworkError
		suite.True(errors.As(err, &de))
		suite.Equal(reflect.TypeOf(foreign.Blob{}), de.Attribute)
	})

	suite.Run("Name", func() {
		n := &static.Name{Param: "name", Route: true}
		suite.Equal([]string{"name"}, n.RequiredRouteParameters())
		suite.Equal("Name({name})", n.String())
		suite.Empty((&static.Name{Param: "x"}).RequiredRouteParameters())
	})
}

func TestStaticTestSuite(t *testing.T) {
	suite.Run(t, new(StaticTestSuite))
}
